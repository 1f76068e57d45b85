package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrPoolClosed is returned when trying to use a closed pool.
	ErrPoolClosed = errors.New("browser pool is closed")
)

// Handle pairs a browsing context with its single active page. A handle is
// loaned to one request at a time.
type Handle struct {
	ID        string
	Context   Context
	Page      Page
	CreatedAt time.Time
	Uses      int

	destroyed atomic.Bool
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	MaxContexts int
	Width       int
	Height      int
	UserAgent   string
}

// Pool hands out browsing contexts. Idle handles are kept in a LIFO stack
// bounded by MaxContexts; handles are created on demand when the stack is
// empty and destroyed when it is full at release time.
type Pool struct {
	mu     sync.Mutex
	driver Driver
	opts   PoolOptions
	logger *slog.Logger
	idle   []*Handle
	loaned int
	closed bool

	created   int
	destroyed int
	replaced  int
}

// NewPool creates a pool over a running browser.
func NewPool(driver Driver, opts PoolOptions, logger *slog.Logger) *Pool {
	if opts.MaxContexts < 1 {
		opts.MaxContexts = 1
	}
	return &Pool{
		driver: driver,
		opts:   opts,
		logger: logger,
		idle:   make([]*Handle, 0, opts.MaxContexts),
	}
}

// Acquire returns a handle for exclusive use until Release.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	var h *Handle
	if n := len(p.idle); n > 0 {
		h = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
	}
	p.loaned++
	p.mu.Unlock()

	if h != nil {
		err := p.revive(ctx, h)
		if err == nil {
			h.Uses++
			return h, nil
		}
		p.logger.Warn("pooled context unusable, creating new one", "id", h.ID, "error", err)
		p.destroy(h)
	}

	h, err := p.create(ctx)
	if err != nil {
		p.mu.Lock()
		p.loaned--
		p.mu.Unlock()
		return nil, err
	}
	h.Uses++
	return h, nil
}

// Release returns a handle to the pool. It never panics or fails: a handle
// that cannot be kept is closed on a best-effort basis.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while releasing context", "id", h.ID, "panic", r)
			p.destroy(h)
		}
	}()

	alive := pageAlive(h)

	p.mu.Lock()
	if p.loaned > 0 {
		p.loaned--
	}
	keep := !p.closed && alive && len(p.idle) < p.opts.MaxContexts
	if keep {
		p.idle = append(p.idle, h)
	}
	p.mu.Unlock()

	if !keep {
		p.destroy(h)
	}
}

// pageAlive reports whether the handle's page is open. A page whose state
// cannot be read counts as dead.
func pageAlive(h *Handle) (alive bool) {
	defer func() {
		if recover() != nil {
			alive = false
		}
	}()
	return h.Page != nil && !h.Page.Closed()
}

// Close drains the idle pool and closes the browser. Handles still on loan
// are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, h := range idle {
		p.destroy(h)
	}
	return p.driver.Close()
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Idle:      len(p.idle),
		Loaned:    p.loaned,
		MaxSize:   p.opts.MaxContexts,
		Created:   p.created,
		Destroyed: p.destroyed,
		Replaced:  p.replaced,
		Closed:    p.closed,
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Idle      int  `json:"idle"`
	Loaned    int  `json:"loaned"`
	MaxSize   int  `json:"maxSize"`
	Created   int  `json:"created"`
	Destroyed int  `json:"destroyed"`
	Replaced  int  `json:"replacedPages"`
	Closed    bool `json:"closed"`
}

// create opens a new context and page.
func (p *Pool) create(ctx context.Context) (*Handle, error) {
	bctx, err := p.driver.NewContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := p.newPage(ctx, bctx)
	if err != nil {
		if !bctx.Shared() {
			_ = bctx.Close()
		}
		return nil, err
	}

	h := &Handle{
		ID:        ulid.Make().String(),
		Context:   bctx,
		Page:      page,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	p.created++
	p.mu.Unlock()

	p.logger.Debug("browser context created", "id", h.ID, "shared", bctx.Shared())
	return h, nil
}

// revive replaces the page of a pooled handle if it was closed while idle.
func (p *Pool) revive(ctx context.Context, h *Handle) error {
	if h.Page != nil && !h.Page.Closed() {
		return nil
	}
	page, err := p.newPage(ctx, h.Context)
	if err != nil {
		return err
	}
	h.Page = page

	p.mu.Lock()
	p.replaced++
	p.mu.Unlock()

	p.logger.Debug("replaced closed page", "id", h.ID)
	return nil
}

func (p *Pool) newPage(ctx context.Context, bctx Context) (Page, error) {
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := page.Emulate(ctx, p.opts.Width, p.opts.Height, p.opts.UserAgent); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to configure page: %w", err)
	}
	return page, nil
}

// destroy closes the page and, unless shared, the context. It runs at
// most once per handle. Errors and panics from the browser are logged and
// swallowed.
func (p *Pool) destroy(h *Handle) {
	if h.destroyed.Swap(true) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("panic while closing context", "id", h.ID, "panic", r)
		}
	}()

	p.mu.Lock()
	p.destroyed++
	p.mu.Unlock()

	if h.Page != nil && !h.Page.Closed() {
		if err := h.Page.Close(); err != nil {
			p.logger.Warn("error closing page", "id", h.ID, "error", err)
		}
	}
	if h.Context != nil && !h.Context.Shared() {
		if err := h.Context.Close(); err != nil {
			p.logger.Warn("error closing context", "id", h.ID, "error", err)
		}
	}
	p.logger.Debug("browser context closed", "id", h.ID)
}
