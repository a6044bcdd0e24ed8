package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/lib/sqliteutil"
)

func wrapOpenAndMigrate(err error) error {
	return fmt.Errorf("open and migrate db: %w", err)
}

// EnsureBaseline creates the baseline schema if it does not exist yet.
func EnsureBaseline(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, db.Schema)
	return err
}

// Migrate creates the baseline schema if it does not exist yet and applies
// every pending built-in step.
func Migrate(ctx context.Context, tel telemetry.API, database *sql.DB) error {
	err := EnsureBaseline(ctx, database)
	if err != nil {
		return err
	}
	orchestrator := NewOrchestrator(tel, chrono.NewStandardTime(nil), database)
	_, err = orchestrator.ApplyAll(ctx, Builtin)
	return err
}

// OpenAndMigrate opens the store described by config and brings its schema
// up to date.
func OpenAndMigrate(ctx context.Context, tel telemetry.API, config sqliteutil.Config) (*sql.DB, error) {
	database, err := config.OpenDB()
	if err != nil {
		return nil, wrapOpenAndMigrate(err)
	}
	err = Migrate(ctx, tel, database)
	if err != nil {
		database.Close()
		return nil, wrapOpenAndMigrate(err)
	}
	return database, nil
}
