// Package migrate applies the embedded schema migrations on startup.
// golang-migrate/migrate/v4 appears in the wider example pack's go.mod
// (paulround2tele-studio); this package is where the gate exercises it
// directly, via the iofs source driver over an embedded filesystem
// rather than that repo's hand-rolled migration runner.
package migrate

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var migrationFiles embed.FS

// Up applies every pending migration against dsn. It is a no-op if the
// schema is already current.
func Up(dsn string) error {
	src, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return fmt.Errorf("migrate: load embedded source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: new instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}
