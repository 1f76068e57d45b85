package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jmylchreest/side-api/internal/config"
	"github.com/jmylchreest/side-api/internal/models"
)

// RodDriver drives a single Chromium process through go-rod.
type RodDriver struct {
	browser *rod.Browser
	shared  bool
	stealth bool
	timeout time.Duration
	logger  *slog.Logger
}

// Launch starts Chromium and connects to it. A launch failure is fatal to
// the service, so callers should exit on error.
func Launch(cfg *config.Config, logger *slog.Logger) (*RodDriver, error) {
	l := launcher.New()

	if cfg.ChromePath != "" {
		logger.Info("using custom Chrome path", "path", cfg.ChromePath)
		l = l.Bin(cfg.ChromePath)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}

	l = l.
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-accelerated-2d-canvas").
		Set("no-first-run").
		Set("no-zygote").
		Set("disable-gpu").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight))

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Info("browser launched",
		"headless", cfg.Headless,
		"user_data_dir", cfg.UserDataDir,
		"shared_context", cfg.SharedContext,
	)

	return &RodDriver{
		browser: b,
		shared:  cfg.SharedContext,
		stealth: cfg.Stealth,
		timeout: cfg.NavigationTimeout,
		logger:  logger,
	}, nil
}

// NewContext implements Driver. The returned context outlives the request
// that created it, so ctx is only checked, never bound.
func (d *RodDriver) NewContext(ctx context.Context) (Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.shared {
		return &rodContext{browser: d.browser, driver: d, shared: true}, nil
	}
	inc, err := d.browser.Incognito()
	if err != nil {
		return nil, err
	}
	return &rodContext{browser: inc, driver: d}, nil
}

// Close implements Driver.
func (d *RodDriver) Close() error {
	return d.browser.Close()
}

type rodContext struct {
	browser *rod.Browser
	driver  *RodDriver
	shared  bool
}

func (c *rodContext) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := createPage(c.browser, c.driver.stealth)
	if err != nil {
		return nil, err
	}
	return &rodPage{page: p, timeout: c.driver.timeout}, nil
}

func (c *rodContext) Shared() bool { return c.shared }

func (c *rodContext) Close() error {
	if c.shared {
		return nil
	}
	return c.browser.Close()
}

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
	closed  atomic.Bool
}

// scoped binds a request context and the navigation timeout. done stops
// the timeout timer and must be called once the step finishes.
func (p *rodPage) scoped(ctx context.Context) (pg *rod.Page, done func()) {
	pg = p.page.Context(ctx).Timeout(p.timeout)
	return pg, func() { pg.CancelTimeout() }
}

func (p *rodPage) Closed() bool {
	if p.closed.Load() {
		return true
	}
	if _, err := p.page.Info(); err != nil {
		p.closed.Store(true)
		return true
	}
	return false
}

func (p *rodPage) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.page.Close()
}

func (p *rodPage) Emulate(ctx context.Context, width, height int, userAgent string) error {
	pg, done := p.scoped(ctx)
	defer done()
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}).Call(pg); err != nil {
		return err
	}
	if userAgent == "" {
		return nil
	}
	return pg.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent})
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg, done := p.scoped(ctx)
	defer done()
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	wait()
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	pg, done := p.scoped(ctx)
	defer done()
	cookies, err := pg.Cookies(nil)
	if err != nil {
		return nil, err
	}
	return fromProtoCookies(cookies), nil
}

func (p *rodPage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	pg, done := p.scoped(ctx)
	defer done()
	return proto.NetworkSetCookies{Cookies: toProtoCookies(cookies)}.Call(pg)
}

func (p *rodPage) Type(ctx context.Context, selector, text string) error {
	pg, done := p.scoped(ctx)
	defer done()
	el, err := pg.Element(selector)
	if err != nil {
		return err
	}
	return el.Input(text)
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	pg, done := p.scoped(ctx)
	defer done()
	el, err := pg.Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) ClickAndWait(ctx context.Context, selector string) error {
	pg, done := p.scoped(ctx)
	defer done()
	el, err := pg.Element(selector)
	if err != nil {
		return err
	}
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	wait()
	return nil
}

func (p *rodPage) Exists(ctx context.Context, selector string) (bool, error) {
	pg, done := p.scoped(ctx)
	defer done()
	has, _, err := pg.Has(selector)
	return has, err
}

func toProtoCookies(cookies []models.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = proto.NetworkCookieSameSiteStrict
		case "lax":
			param.SameSite = proto.NetworkCookieSameSiteLax
		case "none":
			param.SameSite = proto.NetworkCookieSameSiteNone
		}
		params = append(params, param)
	}
	return params
}

func fromProtoCookies(cookies []*proto.NetworkCookie) []models.Cookie {
	result := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		result = append(result, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	return result
}
