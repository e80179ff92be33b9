// Package migrations embeds SQL migration files into the binary so the
// activity cache schema can be applied without shipping loose SQL files.
package migrations

import (
	"embed"

	"github.com/jjbrunton/garminconnect-webapi/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
