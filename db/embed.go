// Package db provides embedded database schema and migration files.
package db

import _ "embed"

// Schema contains the DDL for the team cart tables, the outbox/inbox event
// tables, and the menu item read model.
//
//go:embed migrations/001_schema.sql
var Schema string
