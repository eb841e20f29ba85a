// Package migrations embeds the Postgres schema migrations applied by
// golang-migrate before the session store opens its gorm connection.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
