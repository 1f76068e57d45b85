// Package browser owns the headless browser process and the pool of
// browsing contexts handed out to requests.
package browser

import (
	"context"

	"github.com/jmylchreest/side-api/internal/models"
)

// Driver creates browsing contexts on a running browser.
type Driver interface {
	// NewContext returns an isolated context, or the browser's default
	// context when contexts are shared.
	NewContext(ctx context.Context) (Context, error)
	Close() error
}

// Context is a browsing context able to open pages.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	// Shared reports whether this is the browser's default context, which
	// must never be closed by the pool.
	Shared() bool
	Close() error
}

// Page is the subset of page automation the service needs.
type Page interface {
	Closed() bool
	Close() error
	Emulate(ctx context.Context, width, height int, userAgent string) error
	Navigate(ctx context.Context, url string) error
	URL() string
	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// ClickAndWait clicks and waits for the resulting navigation to settle.
	ClickAndWait(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
}

type handleKey struct{}

// WithHandle attaches a loaned handle to the context.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFromContext returns the handle loaned to the current request.
func HandleFromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(*Handle)
	return h, ok && h != nil
}
