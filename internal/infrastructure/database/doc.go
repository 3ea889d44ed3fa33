// Package database provides SQLite connectivity for the signal gateway.
//
// It owns:
//   - Opening the database with WAL mode and a busy timeout
//   - Forward and rollback schema migrations from an embedded filesystem
//   - Health checks and pool statistics for the metrics endpoint
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
