// Package cli implements ppctl, the operator console for the internal Ledger
// API.
//
// The console reads one command per line:
//
//	charge <email>    run the monthly billing decision for a user
//	stats <email>     show a user's referral code, balance and history
//	global            show global referral totals and top referrers
//	reconcile         audit balances against the ledger
//	download          save the last exported audit report locally
//	history [n]       show the last n executed commands
//	help              list commands
//	exit | quit       leave the console
//
// Every Ledger command is recorded in the local SQLite journal. A background
// watcher polls the server health endpoint and switches the prompt between
// online and offline.
package cli
