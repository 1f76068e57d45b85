package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/challenge"
	"github.com/jmylchreest/side-api/internal/config"
	"github.com/jmylchreest/side-api/internal/consent"
	"github.com/jmylchreest/side-api/internal/models"
)

// ErrAuthFailed is returned when neither cookie replay nor a fresh login
// produced an authenticated page.
var ErrAuthFailed = errors.New("login failed")

// Outcome tells how a page came to be authenticated.
type Outcome int

const (
	// OutcomeCached means authentication was skipped because the request is
	// served from a valid cache.
	OutcomeCached Outcome = iota
	// OutcomeReplayed means stored cookies were still accepted.
	OutcomeReplayed
	// OutcomeLoggedIn means a fresh credential login ran.
	OutcomeLoggedIn
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCached:
		return "cached"
	case OutcomeReplayed:
		return "replayed"
	case OutcomeLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// Interceptor authenticates loaned pages against vendor back offices.
type Interceptor struct {
	jar     Jar
	vendors map[string]*config.VendorConfig
	dismiss *consent.Dismisser
	detect  *challenge.Detector
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	logins map[string]*sync.Mutex
}

// NewInterceptor creates an interceptor for the configured vendors.
func NewInterceptor(jar Jar, vendors map[string]*config.VendorConfig, logger *slog.Logger) *Interceptor {
	return &Interceptor{
		jar:     jar,
		vendors: vendors,
		dismiss: consent.NewDismisser(logger),
		detect:  challenge.NewDetector(),
		logger:  logger,
		now:     time.Now,
		logins:  make(map[string]*sync.Mutex),
	}
}

// Ensure leaves page authenticated for vendor. When cached is true the
// request only needs data already in the cache and authentication is
// skipped. Otherwise stored cookies are replayed first and a fresh login
// runs only when the replayed session is not accepted.
func (i *Interceptor) Ensure(ctx context.Context, vendor string, page browser.Page, cached bool) (Outcome, error) {
	if cached {
		return OutcomeCached, nil
	}
	cfg, ok := i.vendors[vendor]
	if !ok {
		return 0, fmt.Errorf("%w: unknown vendor %q", ErrAuthFailed, vendor)
	}
	logger := i.logger.With("vendor", vendor)

	if ok, err := i.replay(ctx, cfg, page); err != nil {
		return 0, err
	} else if ok {
		logger.Debug("stored session accepted")
		return OutcomeReplayed, nil
	}

	// One login per vendor at a time. A request that waited may find the
	// jar refreshed by the login it waited on.
	lock := i.loginLock(vendor)
	lock.Lock()
	defer lock.Unlock()

	if ok, err := i.replay(ctx, cfg, page); err != nil {
		return 0, err
	} else if ok {
		logger.Debug("session refreshed by concurrent login")
		return OutcomeReplayed, nil
	}

	logger.Info("logging in")
	if err := i.login(ctx, cfg, page); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if derr := i.jar.Delete(context.WithoutCancel(ctx), vendor); derr != nil {
			logger.Warn("failed to discard stale cookie jar", "error", derr)
		}
		logger.Warn("login failed", "error", err)
		return 0, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		logger.Warn("failed to read cookies after login", "error", err)
		return OutcomeLoggedIn, nil
	}
	if err := i.jar.Save(ctx, vendor, cookies); err != nil {
		logger.Warn("failed to persist cookie jar", "error", err)
	}
	return OutcomeLoggedIn, nil
}

func (i *Interceptor) loginLock(vendor string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.logins[vendor]
	if !ok {
		l = &sync.Mutex{}
		i.logins[vendor] = l
	}
	return l
}

// replay applies the stored jar and checks whether the landing page still
// treats the session as logged in. A missing or unreadable jar, or a
// navigation failure, is a miss. Only cancellation is an error.
func (i *Interceptor) replay(ctx context.Context, cfg *config.VendorConfig, page browser.Page) (bool, error) {
	cookies, err := i.jar.Load(ctx, cfg.Name)
	if err != nil {
		if !errors.Is(err, ErrNoCookies) {
			i.logger.Warn("ignoring unreadable cookie jar", "vendor", cfg.Name, "error", err)
		}
		return false, ctx.Err()
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		i.logger.Warn("failed to apply stored cookies", "vendor", cfg.Name, "error", err)
		return false, ctx.Err()
	}
	if err := page.Navigate(ctx, cfg.LandingURL); err != nil {
		i.logger.Warn("landing navigation failed", "vendor", cfg.Name, "error", err)
		return false, ctx.Err()
	}
	return i.loggedIn(ctx, cfg, page)
}

// login runs the credential form. Vendors without a separate login page
// show the form on the landing page.
func (i *Interceptor) login(ctx context.Context, cfg *config.VendorConfig, page browser.Page) error {
	if cfg.Username == "" || cfg.Password == "" {
		return errors.New("credentials not configured")
	}
	loginURL := cfg.LoginURL
	if loginURL == "" {
		loginURL = cfg.LandingURL
	}

	if err := page.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if n := i.dismiss.Dismiss(ctx, page, cfg.DismissSelectors); n > 0 {
		i.logger.Debug("overlays dismissed before login", "vendor", cfg.Name, "count", n)
	}
	if err := i.blocked(ctx, page); err != nil {
		return err
	}
	if err := page.Type(ctx, cfg.UserSelector, cfg.Username); err != nil {
		return fmt.Errorf("enter username: %w", err)
	}
	if err := page.Type(ctx, cfg.PasswordSelector, cfg.Password); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	if err := page.ClickAndWait(ctx, cfg.SubmitSelector); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	if err := page.Navigate(ctx, cfg.LandingURL); err != nil {
		return fmt.Errorf("open landing page: %w", err)
	}
	ok, err := i.loggedIn(ctx, cfg, page)
	if err != nil {
		return err
	}
	if !ok {
		if err := i.blocked(ctx, page); err != nil {
			return err
		}
		return fmt.Errorf("still logged out at %s", page.URL())
	}
	return nil
}

// blocked returns a *challenge.Error when page shows a bot challenge. The
// form cannot be completed past one, so the login stops there.
func (i *Interceptor) blocked(ctx context.Context, page browser.Page) error {
	d, err := i.detect.Detect(ctx, page)
	if err != nil {
		return fmt.Errorf("detect challenge: %w", err)
	}
	if d.Found() {
		return &challenge.Error{Detection: d}
	}
	return nil
}

// loggedIn applies the vendor's heuristics to the current page: the URL
// must contain LoggedInURL (the landing URL when no login selectors are
// configured), none of LoginSelectors may be present, and a TokenCookie
// holding a JWT must not be expired.
func (i *Interceptor) loggedIn(ctx context.Context, cfg *config.VendorConfig, page browser.Page) (bool, error) {
	want := cfg.LoggedInURL
	if want == "" && len(cfg.LoginSelectors) == 0 {
		want = cfg.LandingURL
	}
	if want != "" && !strings.Contains(page.URL(), want) {
		return false, nil
	}

	for _, sel := range cfg.LoginSelectors {
		present, err := page.Exists(ctx, sel)
		if err != nil {
			return false, ctx.Err()
		}
		if present {
			return false, nil
		}
	}

	if cfg.TokenCookie != "" {
		cookies, err := page.Cookies(ctx)
		if err != nil {
			return false, ctx.Err()
		}
		token, ok := models.FindCookie(cookies, cfg.TokenCookie)
		if !ok || token.Value == "" {
			return false, nil
		}
		if tokenExpired(token.Value, i.now()) {
			return false, nil
		}
	}
	return true, nil
}

// tokenExpired reports whether value is a JWT whose exp has passed. Opaque
// tokens never expire here; the vendor decides.
func tokenExpired(value string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
