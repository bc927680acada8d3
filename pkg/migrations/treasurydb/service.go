// Package treasurydb holds all the migrations for the treasury engine database
package treasurydb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the treasury engine database
var Migrations = migrate.NewMigrations()
