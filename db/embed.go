// Package db embeds the database schema so binaries can migrate on start
// without shipping SQL files alongside them.
package db

import _ "embed"

// Schema holds the idempotent DDL for all tables and indexes.
//
//go:embed migrations/001_schema.sql
var Schema string
