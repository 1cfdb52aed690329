// Package persistence selects a claims.Store implementation from the
// environment. Only this package imports the persistence infra drivers.
package persistence

import (
	"fmt"
	"os"

	"claimstack/internal/claims"
	"claimstack/internal/infra/persistence/postgres"
	"claimstack/internal/infra/persistence/sqlite"
)

// Open selects a claims.Store using environment variables.
//
//	CLAIMSTACK_PERSISTENCE_DRIVER: memory|sqlite|postgres (default memory)
//	CLAIMSTACK_SQLITE_PATH: database path when driver=sqlite
//	CLAIMSTACK_POSTGRES_DSN: connection string when driver=postgres
func Open() (claims.Store, error) {
	driver := os.Getenv("CLAIMSTACK_PERSISTENCE_DRIVER")
	if driver == "" {
		driver = "memory"
	}
	switch driver {
	case "memory":
		return claims.NewMemoryStore(), nil
	case "sqlite":
		return sqlite.NewStore(os.Getenv("CLAIMSTACK_SQLITE_PATH"))
	case "postgres":
		return postgres.NewStore(os.Getenv("CLAIMSTACK_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown persistence driver %s", driver)
	}
}
