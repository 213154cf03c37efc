// Package store implements core.Store over memory, SQLite and PostgreSQL.
//
// All three backends keep the same contract: GetSource and GetMerge return
// a *core.NotFoundError for unknown ids, LoadSettings returns nil when no
// record exists and UpdateSettings serializes concurrent updates of one
// table id.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// goose keeps its dialect and filesystem in package state.
var migrateMu sync.Mutex

// runMigrations applies all pending migrations for dialect.
func runMigrations(db *sql.DB, dialect, dir string) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
