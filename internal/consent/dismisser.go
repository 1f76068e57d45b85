// Package consent clears consent banners and notice overlays that cover a
// vendor's login form.
package consent

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/side-api/internal/browser"
)

// DefaultSelectors are accept buttons of common consent management
// platforms.
var DefaultSelectors = []string{
	// OneTrust
	`#onetrust-accept-btn-handler`,
	`button.onetrust-close-btn-handler`,
	`#accept-recommended-btn-handler`,

	// Cookiebot
	`button#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll`,
	`button#CybotCookiebotDialogBodyButtonAccept`,

	// Didomi
	`button#didomi-notice-agree-button`,

	// TrustArc
	`#truste-consent-button`,
}

// Dismisser clicks away overlays before the login form is filled.
type Dismisser struct {
	logger   *slog.Logger
	defaults []string
}

// NewDismisser creates a dismisser trying DefaultSelectors after any
// vendor specific ones.
func NewDismisser(logger *slog.Logger) *Dismisser {
	return &Dismisser{logger: logger, defaults: DefaultSelectors}
}

// Dismiss clicks every overlay control present on the page, vendor
// selectors first, and returns how many were clicked. Failures are logged
// and skipped; a login attempt is never blocked by an overlay that cannot
// be closed.
func (d *Dismisser) Dismiss(ctx context.Context, page browser.Page, vendorSelectors []string) int {
	seen := make(map[string]bool, len(vendorSelectors)+len(d.defaults))
	clicked := 0

	for _, group := range [][]string{vendorSelectors, d.defaults} {
		for _, sel := range group {
			if sel == "" || seen[sel] {
				continue
			}
			seen[sel] = true
			if ctx.Err() != nil {
				return clicked
			}

			present, err := page.Exists(ctx, sel)
			if err != nil || !present {
				continue
			}
			if err := page.Click(ctx, sel); err != nil {
				d.logger.Debug("failed to dismiss overlay", "selector", sel, "error", err)
				continue
			}
			d.logger.Debug("dismissed overlay", "selector", sel)
			clicked++
		}
	}
	return clicked
}
