// Package migrate applies the embedded SQL migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/poofware/verification-service/internal/db"
	"github.com/poofware/verification-service/internal/utils"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Run applies migrations in the given direction against dsn. Being already
// at the target version is not an error.
func Run(dsn string, direction string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if direction != DirectionUp && direction != DirectionDown {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case DirectionUp:
		err = m.Up()
	case DirectionDown:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		utils.Logger.Infof("Migrations (%s): no change", direction)
		return nil
	}
	if err != nil {
		return err
	}

	if version, dirty, vErr := m.Version(); vErr == nil {
		utils.Logger.Infof("Migrations (%s) applied; version=%d dirty=%t", direction, version, dirty)
	}
	return nil
}
