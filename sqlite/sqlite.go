package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/imagvfx/autolite"
	"github.com/mattn/go-sqlite3"
)

// Open opens a sqlite database at path.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	// Enable Write-Ahead Logging. See https://sqlite.org/wal.html
	// Other operators' processes read the db while a scheduler writes to it.
	// Options in the dsn are applied to every connection of the pool.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// Create opens a sqlite database at path, and creates the tables in it.
func Create(path string) (*sql.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	err = Init(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Init creates the tables if they don't exist.
// When drop is true, existing tables are dropped first and every record is lost.
func Init(db *sql.DB, drop bool) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if drop {
		for _, table := range []string{"tasks", "systems"} {
			_, err := tx.Exec(`DROP TABLE IF EXISTS ` + table)
			if err != nil {
				return fmt.Errorf("drop %s: %w", table, err)
			}
		}
	}
	err = CreateTasksTable(tx)
	if err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	err = CreateSystemsTable(tx)
	if err != nil {
		return fmt.Errorf("create systems table: %w", err)
	}
	return tx.Commit()
}

// conflict converts a primary key violation to autolite.ErrExists.
func conflict(err error, table, name string) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return autolite.Exists(table, name)
	}
	return err
}

// affected checks an update or delete has hit the record.
func affected(result sql.Result, table, name string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return autolite.NotFound(table, name)
	}
	return nil
}
