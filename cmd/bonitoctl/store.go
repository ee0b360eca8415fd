package main

import (
	"os"

	"github.com/ShabariRepo/bonito-sub002/internal/store"
)

// openStore opens the control-plane store from --db, falling back to
// DATABASE_URL (Postgres) then SQLITE_PATH/a local default, matching
// cmd/bonitogw's resolution order.
func openStore(dsnFlag string) (*store.SQLStore, error) {
	if dsnFlag != "" {
		return store.NewSQLiteStore(dsnFlag)
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return store.NewPostgresStore(dsn)
	}
	dsn := os.Getenv("SQLITE_PATH")
	if dsn == "" {
		dsn = "bonitogw-control-plane.db"
	}
	return store.NewSQLiteStore(dsn)
}
