// Package migrations embeds the per-dialect schema files applied by
// database.DB.RunMigrations.
package migrations

import "embed"

// FS holds sqlite/, postgres/ and mysql/ migration directories.
//
//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var FS embed.FS
