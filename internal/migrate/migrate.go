// Copyright 2025 James Ross

// Package migrate is the consumer-facing contract around
// golang-migrate/migrate/v4 for bringing a schema up to date; the ingestion
// server does not call it. The migrator CLI itself (inspecting/authoring new
// migration files) is out of scope, but driving the already-committed
// migrations/ directory against the configured database is not.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Source abstracts over an embedded filesystem so callers aren't forced to
// embed migrations/ into this package's binary; a caller can embed the
// real directory, tests can embed a scratch one.
type Source struct {
	FS   fs.FS
	Path string
}

// Up applies every pending migration.
func Up(dsn string, src Source, log *zap.Logger) error {
	return run(dsn, src, log, func(m *migrate.Migrate) error { return m.Up() })
}

// Down rolls back every applied migration.
func Down(dsn string, src Source, log *zap.Logger) error {
	return run(dsn, src, log, func(m *migrate.Migrate) error { return m.Down() })
}

// Steps applies (n > 0) or rolls back (n < 0) exactly |n| migrations.
func Steps(dsn string, src Source, n int, log *zap.Logger) error {
	return run(dsn, src, log, func(m *migrate.Migrate) error { return m.Steps(n) })
}

// Version reports the current schema version and whether it is in a dirty
// (partially applied) state.
func Version(dsn string, src Source) (uint, bool, error) {
	m, err := newMigrate(dsn, src)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func run(dsn string, src Source, log *zap.Logger, apply func(*migrate.Migrate) error) error {
	m, err := newMigrate(dsn, src)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := apply(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("migrate: no change")
			return nil
		}
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func newMigrate(dsn string, src Source) (*migrate.Migrate, error) {
	d, err := iofs.New(src.FS, src.Path)
	if err != nil {
		return nil, fmt.Errorf("migrate: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: new instance: %w", err)
	}
	return m, nil
}
