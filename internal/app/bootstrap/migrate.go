package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appmigrations "github.com/wolfman30/healsmart/migrations"
)

// Migrator applies the embedded documents schema to Postgres.
type Migrator struct {
	db *sql.DB
	m  *migrate.Migrate
}

// OpenMigrator connects to databaseURL and prepares the embedded migrations.
func OpenMigrator(databaseURL string) (*Migrator, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("bootstrap: DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: create migrator: %w", err)
	}
	return &Migrator{db: db, m: m}, nil
}

// Up applies pending migrations. Already being current is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("bootstrap: migrate up: %w", err)
	}
	return nil
}

// Force marks version as applied without running it, clearing a dirty state.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("bootstrap: force version %d: %w", version, err)
	}
	return nil
}

// Version reports the current schema version.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (mg *Migrator) Close() error {
	_, _ = mg.m.Close()
	return nil
}
