// Package db embeds the database schema so binaries can migrate themselves
// without shipping SQL files alongside.
package db

import _ "embed"

// Schema holds the DDL for every application table. Statements are
// idempotent (CREATE ... IF NOT EXISTS) so running them on an existing
// database is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
