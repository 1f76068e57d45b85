package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmylchreest/side-api/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testJars(t *testing.T) map[string]Jar {
	t.Helper()
	dir := t.TempDir()

	fileJar, err := NewFileJar(filepath.Join(dir, "cookies"), testLogger())
	if err != nil {
		t.Fatalf("NewFileJar() error = %v", err)
	}
	sqliteJar, err := NewSQLiteJar(filepath.Join(dir, "jar.db"), testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteJar() error = %v", err)
	}
	t.Cleanup(func() { sqliteJar.Close() })

	return map[string]Jar{"file": fileJar, "sqlite": sqliteJar}
}

func TestJar_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, jar := range testJars(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := jar.Load(ctx, "baemin"); !errors.Is(err, ErrNoCookies) {
				t.Fatalf("Load() on empty jar error = %v, want ErrNoCookies", err)
			}

			first := []models.Cookie{{Name: "sid", Value: "1", Domain: ".baemin.test", Path: "/", Expires: -1, HTTPOnly: true}}
			if err := jar.Save(ctx, "baemin", first); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			second := []models.Cookie{{Name: "sid", Value: "2"}, {Name: "csrf", Value: "x"}}
			if err := jar.Save(ctx, "baemin", second); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := jar.Load(ctx, "baemin")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(got) != 2 || got[0].Value != "2" || got[1].Name != "csrf" {
				t.Errorf("Load() = %+v, want the last saved jar", got)
			}

			if _, err := jar.Load(ctx, "coupang"); !errors.Is(err, ErrNoCookies) {
				t.Errorf("other vendor error = %v, want ErrNoCookies", err)
			}

			if err := jar.Delete(ctx, "baemin"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := jar.Load(ctx, "baemin"); !errors.Is(err, ErrNoCookies) {
				t.Errorf("Load() after Delete error = %v, want ErrNoCookies", err)
			}
			if err := jar.Delete(ctx, "baemin"); err != nil {
				t.Errorf("second Delete() error = %v", err)
			}
		})
	}
}

func TestFileJar_Layout(t *testing.T) {
	dir := t.TempDir()
	jar, err := NewFileJar(dir, testLogger())
	if err != nil {
		t.Fatalf("NewFileJar() error = %v", err)
	}
	ctx := context.Background()

	t.Run("one file per vendor", func(t *testing.T) {
		if err := jar.Save(ctx, "ddangyo", []models.Cookie{{Name: "a", Value: "b"}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "ddangyo-cookies.json")); err != nil {
			t.Errorf("jar file missing: %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 {
			t.Errorf("expected no temp files left, got %d entries", len(entries))
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		if err := os.WriteFile(jar.Path("coupang"), []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := jar.Load(ctx, "coupang")
		if err == nil || errors.Is(err, ErrNoCookies) {
			t.Errorf("Load() error = %v, want a parse error", err)
		}
	})

	t.Run("empty array", func(t *testing.T) {
		if err := os.WriteFile(jar.Path("yogiyo"), []byte("[]"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := jar.Load(ctx, "yogiyo"); !errors.Is(err, ErrNoCookies) {
			t.Errorf("Load() error = %v, want ErrNoCookies", err)
		}
	})
}
