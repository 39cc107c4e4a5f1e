package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Runner drives golang-migrate against the embedded migration set,
// opening its database/sql connection through pgx's stdlib driver to
// match the rest of this module's pgx/v5 stack.
type Runner struct {
	migrate *migrate.Migrate
	db      *sql.DB
}

// migrateLogger adapts the standard logger to migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) { log.Printf("migrate: "+format, v...) }
func (migrateLogger) Verbose() bool                          { return false }

// NewRunner opens databaseURL and prepares a Runner against the embedded
// migration set. migrationsTable overrides golang-migrate's default
// version-tracking table name; pass "" for its default.
func NewRunner(databaseURL, migrationsTable string) (*Runner, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: postgres driver: %w", err)
	}

	sourceFS, err := FS()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	source, err := iofs.New(sourceFS, ".")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: new migrate instance: %w", err)
	}
	m.Log = migrateLogger{}

	return &Runner{migrate: m, db: db}, nil
}

// Up applies every pending migration. A no-change result is not an error.
func (r *Runner) Up() error {
	if err := r.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down() error {
	if err := r.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: down: %w", err)
	}
	return nil
}

// Version reports the current schema version and whether a prior
// migration failed partway ("dirty"). version is 0 with ok=false before
// any migration has run.
func (r *Runner) Version() (version uint, dirty bool, ok bool, err error) {
	v, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("migrations: version: %w", err)
	}
	return v, dirty, true, nil
}

// Close releases the migrate instance's source and database handles.
func (r *Runner) Close() error {
	sourceErr, dbErr := r.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
