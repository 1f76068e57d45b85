package mw

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/logging"
)

// BrowserPage loans a pooled browser page to the request for its whole
// lifetime. The handle is attached to the request context and released
// after the handler returns, whether it succeeded or not.
func BrowserPage(api huma.API, pool *browser.Pool, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		reqCtx := ctx.Context()
		log := logging.FromContext(reqCtx, logger)

		h, err := pool.Acquire(reqCtx)
		if err != nil {
			log.Error("failed to acquire browser page", "error", err)
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "failed to acquire browser page")
			return
		}
		defer pool.Release(h)

		log.Debug("browser page acquired", "handle", h.ID, "uses", h.Uses)
		next(huma.WithContext(ctx, browser.WithHandle(reqCtx, h)))
	}
}
