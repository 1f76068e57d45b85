package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jmylchreest/side-api/internal/models"
)

// SQLiteJar keeps every vendor's cookie jar in one SQLite table.
type SQLiteJar struct {
	db       *sql.DB
	logger   *slog.Logger
	isMemory bool
}

// NewSQLiteJar opens (or creates) the jar database at dbPath. ":memory:"
// keeps everything in memory.
func NewSQLiteJar(dbPath string, logger *slog.Logger) (*SQLiteJar, error) {
	var connStr string
	isMemory := dbPath == ":memory:"

	if isMemory {
		connStr = "file::memory:?cache=shared&_timeout=5000&_busy_timeout=5000"
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		connStr = dbPath + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	jar := &SQLiteJar{db: db, logger: logger, isMemory: isMemory}
	if err := jar.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("SQLite cookie jar initialized", "path", dbPath, "in_memory", isMemory)
	return jar, nil
}

func (s *SQLiteJar) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cookie_jars (
		vendor TEXT PRIMARY KEY,
		cookies_json TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load implements Jar. A row whose JSON cannot be parsed is reported as an
// error so the caller falls back to a fresh login.
func (s *SQLiteJar) Load(ctx context.Context, vendor string) ([]models.Cookie, error) {
	var cookiesJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT cookies_json FROM cookie_jars WHERE vendor = ?", vendor,
	).Scan(&cookiesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCookies
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cookie jar: %w", err)
	}

	var cookies []models.Cookie
	if err := json.Unmarshal([]byte(cookiesJSON), &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookie jar: %w", err)
	}
	if len(cookies) == 0 {
		return nil, ErrNoCookies
	}
	return cookies, nil
}

// Save implements Jar.
func (s *SQLiteJar) Save(ctx context.Context, vendor string, cookies []models.Cookie) error {
	if cookies == nil {
		cookies = []models.Cookie{}
	}
	cookiesJSON, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	query := `
	INSERT INTO cookie_jars (vendor, cookies_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(vendor) DO UPDATE SET
		cookies_json = excluded.cookies_json,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, vendor, string(cookiesJSON), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save cookie jar: %w", err)
	}

	s.logger.Debug("cookie jar persisted", "vendor", vendor, "cookies", len(cookies))
	return nil
}

// Delete implements Jar.
func (s *SQLiteJar) Delete(ctx context.Context, vendor string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cookie_jars WHERE vendor = ?", vendor); err != nil {
		return fmt.Errorf("failed to delete cookie jar: %w", err)
	}
	s.logger.Debug("cookie jar deleted", "vendor", vendor)
	return nil
}

// Close checkpoints the WAL of file databases and closes the connection.
func (s *SQLiteJar) Close() error {
	if !s.isMemory {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Warn("failed to checkpoint WAL before close", "error", err)
		}
	}
	return s.db.Close()
}
