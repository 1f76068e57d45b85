// Package session persists vendor cookie jars and runs the login state
// machine that authenticates a loaned browser page before a vendor route
// handler runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/side-api/internal/models"
)

// ErrNoCookies is returned by Load when a vendor has no stored jar.
var ErrNoCookies = errors.New("no stored cookies")

// Jar stores one cookie jar per vendor. Jars are read and written
// wholesale.
type Jar interface {
	Load(ctx context.Context, vendor string) ([]models.Cookie, error)
	Save(ctx context.Context, vendor string, cookies []models.Cookie) error
	Delete(ctx context.Context, vendor string) error
	Close() error
}

// FileJar keeps each vendor's cookies in <dir>/<vendor>-cookies.json.
type FileJar struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
}

// NewFileJar creates a file jar rooted at dir, creating dir if needed.
func NewFileJar(dir string, logger *slog.Logger) (*FileJar, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cookie directory: %w", err)
	}
	return &FileJar{dir: dir, logger: logger}, nil
}

// Path returns the jar file of a vendor.
func (j *FileJar) Path(vendor string) string {
	return filepath.Join(j.dir, vendor+"-cookies.json")
}

// Load reads a vendor's jar. A missing file yields ErrNoCookies; a corrupt
// one yields a parse error.
func (j *FileJar) Load(_ context.Context, vendor string) ([]models.Cookie, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.Path(vendor))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCookies
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie jar: %w", err)
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookie jar: %w", err)
	}
	if len(cookies) == 0 {
		return nil, ErrNoCookies
	}
	return cookies, nil
}

// Save overwrites a vendor's jar. The file is replaced atomically so a
// concurrent Load never sees a partial write.
func (j *FileJar) Save(_ context.Context, vendor string, cookies []models.Cookie) error {
	if cookies == nil {
		cookies = []models.Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tmp, err := os.CreateTemp(j.dir, vendor+"-cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookie jar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cookie jar: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.Path(vendor)); err != nil {
		return fmt.Errorf("failed to replace cookie jar: %w", err)
	}

	j.logger.Debug("cookie jar saved", "vendor", vendor, "cookies", len(cookies))
	return nil
}

// Delete removes a vendor's jar. Deleting a missing jar is not an error.
func (j *FileJar) Delete(_ context.Context, vendor string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.Remove(j.Path(vendor)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cookie jar: %w", err)
	}
	return nil
}

// Close implements Jar.
func (j *FileJar) Close() error { return nil }

var (
	_ Jar = (*FileJar)(nil)
	_ Jar = (*SQLiteJar)(nil)
)
