// Package migrations embeds the SQL migration files so the migrate binary
// carries its schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
