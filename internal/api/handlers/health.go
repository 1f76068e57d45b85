package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/cache"
	"github.com/jmylchreest/side-api/internal/version"
)

// Banner is the plain text body of GET /.
const Banner = "Side API Server is running!"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version"`
	Vendors []string           `json:"vendors"`
	Pool    *browser.PoolStats `json:"pool,omitempty"`
	Cache   *cache.Stats       `json:"cache,omitempty"`
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	pool    *browser.Pool
	cache   *cache.Cache
	vendors []string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool *browser.Pool, c *cache.Cache, vendors []string) *HealthHandler {
	return &HealthHandler{pool: pool, cache: c, vendors: vendors}
}

// HealthOutput is the output wrapper for Huma.
type HealthOutput struct {
	Body HealthResponse
}

// BannerOutput is the plain text root response.
type BannerOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// Handle returns the health status.
func (h *HealthHandler) Handle(ctx context.Context) *HealthResponse {
	poolStats := h.pool.Stats()
	cacheStats := h.cache.Stats()

	status := "healthy"
	if poolStats.Closed {
		status = "shutting down"
	}
	return &HealthResponse{
		Status:  status,
		Version: version.Get().Version,
		Vendors: h.vendors,
		Pool:    &poolStats,
		Cache:   &cacheStats,
	}
}

// Register adds GET / and GET /health.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Banner",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*BannerOutput, error) {
		return &BannerOutput{ContentType: "text/plain; charset=utf-8", Body: []byte(Banner)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns health status with pool and cache statistics",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: *h.Handle(ctx)}, nil
	})
}
