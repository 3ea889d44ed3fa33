// Package migrations embeds the gateway's SQL schema into the binary and
// registers it with the database package.
package migrations

import (
	"embed"

	"github.com/quadrumtech/signal-gateway/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}
