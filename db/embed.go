// Package db provides the embedded goose migrations.
package db

import "embed"

// MigrationsDir is the directory of Migrations holding the SQL files.
const MigrationsDir = "migrations"

// Migrations contains the goose migration files.
//
//go:embed migrations/*.sql
var Migrations embed.FS
