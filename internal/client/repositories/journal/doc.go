// Package journal stores the console's command history in the local SQLite
// database.
package journal
