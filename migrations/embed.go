// Package migrations embeds the registry's SQL migrations for tests and tooling.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
