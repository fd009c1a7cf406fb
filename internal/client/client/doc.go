// Package client implements the ppctl side of the internal Ledger API.
//
// GRPCClient dials the server, attaches a short-lived service token to every
// call and transparently re-mints it once when the server reports it as
// expired. Responses are decoded from generic structs into the typed views
// in package models. InitDatabase opens the local SQLite journal and applies
// its goose migrations.
package client
