package testutil

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/migrate"
	"nwsl-backend/lib/sqliteutil"

	"github.com/mazen160/go-random"
)

type StoreParams struct {
	// if unspecified, it will use `:memory:`
	DbPath string
	// if true, only the baseline schema is created and no migration is applied
	Baseline bool
}

type StoreResult struct {
	DB  *sql.DB
	Tel *telemetry.Recorder
}

// SetupStore opens a canonical store for a test, the store is closed when
// the test ends.
func SetupStore(t testing.TB, params StoreParams) StoreResult {
	dbpath := ":memory:"
	if params.DbPath != "" {
		dbpath = params.DbPath
	}
	database, err := sqliteutil.OpenDB(dbpath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	tel := &telemetry.Recorder{}
	if params.Baseline {
		_, err = database.Exec(db.Schema)
	} else {
		err = migrate.Migrate(context.Background(), tel, database)
	}
	if err != nil {
		t.Fatal(err)
	}

	return StoreResult{
		DB:  database,
		Tel: tel,
	}
}

// NativeID returns a random source identifier shaped like the 8 character
// hex ids of the source site.
func NativeID(t testing.TB) string {
	id, err := random.String(8)
	if err != nil {
		t.Fatal(err)
	}
	return strings.ToLower(id)
}
