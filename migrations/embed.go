// Package migrations embeds the SQL migrations applied when a shop database
// is opened. The migration sequence is the store's schema version.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
