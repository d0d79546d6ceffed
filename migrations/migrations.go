// Package migrations embeds the SQL schema for every supported storage backend.
package migrations

import "embed"

// Postgres holds goose migrations for the PostgreSQL backend.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds goose migrations for the embedded SQLite backend.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
