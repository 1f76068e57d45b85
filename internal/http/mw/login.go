package mw

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/logging"
	"github.com/jmylchreest/side-api/internal/session"
)

// LoginFailedMessage is the error returned to callers when a vendor login
// cannot be established.
const LoginFailedMessage = "Login failed"

// Authenticator brings a page into a logged-in state for a vendor.
type Authenticator interface {
	Ensure(ctx context.Context, vendor string, page browser.Page, cached bool) (session.Outcome, error)
}

// LoginTarget is the vendor a route belongs to.
type LoginTarget interface {
	Name() string
	// Cached reports whether the vendor's cacheable reads are all valid.
	Cached() bool
}

// VendorLogin makes sure the request's browser page is logged in to
// target before the handler runs. On cache routes a fully valid cache skips
// authentication. Must run after BrowserPage.
func VendorLogin(api huma.API, auth Authenticator, target LoginTarget, cacheRoute bool, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		reqCtx := logging.WithVendor(ctx.Context(), target.Name())
		log := logging.FromContext(reqCtx, logger)

		h, ok := browser.HandleFromContext(reqCtx)
		if !ok {
			log.Error("no browser page attached to request")
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "no browser page attached to request")
			return
		}

		cached := cacheRoute && target.Cached()
		outcome, err := auth.Ensure(reqCtx, target.Name(), h.Page, cached)
		if err != nil {
			if errors.Is(err, session.ErrAuthFailed) {
				log.Warn("vendor login failed", "error", err)
				_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, LoginFailedMessage)
				return
			}
			log.Error("vendor login error", "error", err)
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, err.Error())
			return
		}

		log.Debug("vendor session ready", "outcome", outcome.String(), "handle", h.ID)
		next(huma.WithContext(ctx, reqCtx))
	}
}
