// Package browsertest provides in-memory browser fakes for tests.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/models"
)

// ErrClosed is returned by operations on a closed fake.
var ErrClosed = errors.New("browsertest: closed")

// Site simulates the pages a fake browser can navigate to. Navigate calls
// Route to decide where the page ends up and which selectors it shows.
type Site struct {
	mu sync.Mutex
	// Route maps a requested URL to the final URL and the selectors present
	// there. The page's cookies are passed so login state can be modelled.
	Route func(url string, cookies []models.Cookie) (final string, selectors []string)
	// Submit runs when a form is submitted through ClickAndWait; it returns
	// the URL navigated to and cookies to add.
	Submit func(form map[string]string, selector string) (final string, cookies []models.Cookie, err error)

	Navigations []string
	Clicks      []string
	Logins      int
}

// Driver is a fake browser.Driver.
type Driver struct {
	mu       sync.Mutex
	Site     *Site
	Shared   bool
	FailNext error

	Contexts []*Context
	Closed   bool
}

// NewDriver returns a driver whose pages navigate within site.
func NewDriver(site *Site) *Driver {
	if site == nil {
		site = &Site{}
	}
	return &Driver{Site: site}
}

// NewContext implements browser.Driver.
func (d *Driver) NewContext(ctx context.Context) (browser.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Closed {
		return nil, ErrClosed
	}
	if err := d.FailNext; err != nil {
		d.FailNext = nil
		return nil, err
	}
	c := &Context{driver: d, shared: d.Shared}
	d.Contexts = append(d.Contexts, c)
	return c, nil
}

// Close implements browser.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// OpenContexts counts contexts not yet closed.
func (d *Driver) OpenContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Contexts {
		if !c.IsClosed() {
			n++
		}
	}
	return n
}

// Context is a fake browser.Context.
type Context struct {
	mu      sync.Mutex
	driver  *Driver
	shared  bool
	closed  bool
	Pages   []*Page
	cookies []models.Cookie
	// PanicOnClose makes Close panic, to exercise release recovery.
	PanicOnClose bool
}

// NewPage implements browser.Context.
func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	p := &Page{ctx: c, site: c.driver.Site, form: make(map[string]string)}
	c.Pages = append(c.Pages, p)
	return p, nil
}

// Shared implements browser.Context.
func (c *Context) Shared() bool { return c.shared }

// Close implements browser.Context.
func (c *Context) Close() error {
	if c.PanicOnClose {
		panic("browsertest: context close panic")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, p := range c.Pages {
		p.markClosed()
	}
	return nil
}

// IsClosed reports whether Close was called.
func (c *Context) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Page is a fake browser.Page. Cookies live on the owning context, like a
// real browsing context.
type Page struct {
	mu        sync.Mutex
	ctx       *Context
	site      *Site
	closed    bool
	url       string
	selectors []string
	form      map[string]string

	Width, Height int
	UserAgent     string
	// PanicOnClosed makes Closed panic, to exercise release recovery.
	PanicOnClosed bool
}

func (p *Page) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Closed implements browser.Page.
func (p *Page) Closed() bool {
	if p.PanicOnClosed {
		panic("browsertest: page state panic")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.markClosed()
	return nil
}

// Emulate implements browser.Page.
func (p *Page) Emulate(ctx context.Context, width, height int, userAgent string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Width, p.Height, p.UserAgent = width, height, userAgent
	return nil
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.Closed() {
		return ErrClosed
	}
	cookies, _ := p.Cookies(ctx)

	p.site.mu.Lock()
	p.site.Navigations = append(p.site.Navigations, url)
	route := p.site.Route
	p.site.mu.Unlock()

	final, selectors := url, []string(nil)
	if route != nil {
		final, selectors = route(url, cookies)
	}

	p.mu.Lock()
	p.url, p.selectors = final, selectors
	p.mu.Unlock()
	return nil
}

// URL implements browser.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Cookies implements browser.Page.
func (p *Page) Cookies(ctx context.Context) ([]models.Cookie, error) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return append([]models.Cookie(nil), p.ctx.cookies...), nil
}

// SetCookies implements browser.Page.
func (p *Page) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	for _, c := range cookies {
		replaced := false
		for i := range p.ctx.cookies {
			if p.ctx.cookies[i].Name == c.Name {
				p.ctx.cookies[i] = c
				replaced = true
			}
		}
		if !replaced {
			p.ctx.cookies = append(p.ctx.cookies, c)
		}
	}
	return nil
}

// Type implements browser.Page.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	if ok, _ := p.Exists(ctx, selector); !ok {
		return errors.New("browsertest: no element " + selector)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.form[selector] += text
	return nil
}

// Click implements browser.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	if ok, _ := p.Exists(ctx, selector); !ok {
		return errors.New("browsertest: no element " + selector)
	}
	p.site.mu.Lock()
	p.site.Clicks = append(p.site.Clicks, selector)
	p.site.mu.Unlock()
	return nil
}

// ClickAndWait implements browser.Page by submitting the typed form.
func (p *Page) ClickAndWait(ctx context.Context, selector string) error {
	if err := p.Click(ctx, selector); err != nil {
		return err
	}

	p.mu.Lock()
	form := p.form
	p.form = make(map[string]string)
	p.mu.Unlock()

	p.site.mu.Lock()
	p.site.Logins++
	submit := p.site.Submit
	p.site.mu.Unlock()

	if submit == nil {
		return nil
	}
	final, cookies, err := submit(form, selector)
	if err != nil {
		return err
	}
	if err := p.SetCookies(ctx, cookies); err != nil {
		return err
	}
	p.mu.Lock()
	p.url, p.selectors = final, nil
	p.mu.Unlock()
	return nil
}

// Exists implements browser.Page.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.selectors {
		if strings.EqualFold(s, selector) {
			return true, nil
		}
	}
	return false, nil
}

// NavigationsCopy returns the URLs navigated to so far.
func (s *Site) NavigationsCopy() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Navigations...)
}

// LoginCount returns how many forms were submitted.
func (s *Site) LoginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Logins
}

// ClicksCopy returns the selectors clicked so far, form submissions
// included.
func (s *Site) ClicksCopy() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Clicks...)
}
