// Package migrations embeds the goose SQL migrations for the tasks
// table so the migrate command needs no files on disk.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
