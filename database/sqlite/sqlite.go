package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverName  = "sqlite"
	DefaultPath = "./storage/assistant.db"
)

func init() {
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

// New opens the local message database, creating its directory if needed.
// An empty path falls back to SQLITE_PATH and then to DefaultPath.
func New(path string) (*sqlx.DB, error) {
	if path == "" {
		path = os.Getenv("SQLITE_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sqlx.Connect(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	return db, nil
}
