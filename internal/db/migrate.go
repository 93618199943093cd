package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

type dialect struct {
	name string
	dir  string
}

var (
	dialectPostgres = dialect{name: "postgres", dir: "migrations/postgres"}
	dialectSQLite   = dialect{name: "sqlite3", dir: "migrations/sqlite"}
)

// goose keeps its base filesystem and dialect in package state.
var gooseMu sync.Mutex

// migrate applies all pending migrations for d to db, reporting progress to logger.
func migrate(ctx context.Context, db *sql.DB, d dialect, logger *log.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel}))
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(d.name); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, d.dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
