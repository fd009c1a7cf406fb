// Package migrations embeds the goose migrations of the ppctl journal.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
