// Package migrations embeds the PostgreSQL schema applied by "oncotracker migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
