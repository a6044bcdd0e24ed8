package sqliteutil

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects the canonical store, a remote libsql database when `url` is
// set and a local sqlite file otherwise.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Config) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		return OpenRemoteDB(config.Url, config.AuthToken)
	}
	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	return OpenDB(config.File)
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens a local sqlite database, `:memory:` opens a fresh in-memory one.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	// this also keeps an in-memory database on a single connection.
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	return db, nil
}

// OpenRemoteDB opens a libsql database over the network.
func OpenRemoteDB(dbUrl, authToken string) (*sql.DB, error) {
	parsed, err := url.Parse(dbUrl)
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	if authToken != "" {
		query := parsed.Query()
		query.Set("authToken", authToken)
		parsed.RawQuery = query.Encode()
	}

	db, err := sql.Open("libsql", parsed.String())
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	return db, nil
}
