// Package migrations embeds the gateway's SQL schema migrations.
package migrations

import "embed"

// FS holds the numbered golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
