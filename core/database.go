package core

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotConnected is returned when the database is used before Connect.
var ErrNotConnected = errors.New("storage: database not connected")

// Database is the client's durable key/value storage. Tokens and cached
// message tables live here between runs.
type Database struct {
	dbFile string
	conn   *sql.DB
}

func NewDatabase(dataDir, dbFile string) (*Database, error) {
	if dbFile == "" {
		dbFile = "portal.db"
	}
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: failed to determine user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".portal-client")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: failed to create data directory %s: %w", dataDir, err)
	}
	return &Database{
		dbFile: filepath.Join(dataDir, dbFile),
	}, nil
}

// Path returns the location of the database file.
func (db *Database) Path() string {
	return db.dbFile
}

func (db *Database) Connect() error {
	conn, err := sql.Open("sqlite3", db.dbFile)
	if err != nil {
		return fmt.Errorf("storage: failed to connect to database: %w", err)
	}
	// sqlite allows one writer at a time.
	conn.SetMaxOpenConns(1)
	db.conn = conn

	if err := db.initDatabase(); err != nil {
		return err
	}
	return db.checkAndUpdateSchema()
}

func (db *Database) initDatabase() error {
	query := `
    CREATE TABLE IF NOT EXISTS local_storage (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at TEXT
    )`
	if _, err := db.conn.Exec(query); err != nil {
		return fmt.Errorf("storage: failed to initialize database: %w", err)
	}
	return nil
}

// checkAndUpdateSchema upgrades tables created before updated_at existed.
func (db *Database) checkAndUpdateSchema() error {
	rows, err := db.conn.Query("PRAGMA table_info(local_storage)")
	if err != nil {
		return fmt.Errorf("storage: failed to fetch table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("storage: failed to scan table info: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage: failed to read table info: %w", err)
	}

	if !columns["updated_at"] {
		if _, err := db.conn.Exec(`ALTER TABLE local_storage ADD COLUMN updated_at TEXT`); err != nil {
			return fmt.Errorf("storage: failed to add updated_at column: %w", err)
		}
	}
	return nil
}

// Get returns the value stored under key. The boolean is false when the key
// is absent.
func (db *Database) Get(key string) (string, bool, error) {
	if db.conn == nil {
		return "", false, ErrNotConnected
	}
	var value string
	err := db.conn.QueryRow(`SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: failed to read %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value.
func (db *Database) Set(key, value string) error {
	if db.conn == nil {
		return ErrNotConnected
	}
	query := `
    INSERT INTO local_storage (key, value, updated_at)
    VALUES (?, ?, ?)
    ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := db.conn.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storage: failed to write %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (db *Database) Remove(key string) error {
	if db.conn == nil {
		return ErrNotConnected
	}
	if _, err := db.conn.Exec(`DELETE FROM local_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: failed to remove %q: %w", key, err)
	}
	return nil
}

func (db *Database) Close() error {
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}
