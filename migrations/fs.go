// Package migrations embeds the engine's SQL migrations for the migrate
// binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
