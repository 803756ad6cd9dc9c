// Package db carries the SQL migrations for the postgres notification store.
package db

import "embed"

// Migrations holds the files under migrations/, compiled into the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"
