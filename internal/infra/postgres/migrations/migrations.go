package migrations

import (
	_ "embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_profiles.sql
var createProfilesSQL string

var Migrations = migrate.NewMigrations()
