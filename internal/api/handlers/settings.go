package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/side-api/internal/logging"
	"github.com/jmylchreest/side-api/internal/settings"
)

// SettingsHandler serves the frontend settings document.
type SettingsHandler struct {
	store  *settings.Store
	logger *slog.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(store *settings.Store, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, logger: logger}
}

// SettingsOutput carries the stored document as-is.
type SettingsOutput struct {
	Body any
}

// SaveSettingsInput accepts any JSON document.
type SaveSettingsInput struct {
	RawBody []byte `contentType:"application/json"`
}

// SaveSettingsOutput confirms a save.
type SaveSettingsOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Get returns the saved settings, or null when none can be read.
func (h *SettingsHandler) Get(ctx context.Context, input *struct{}) (*SettingsOutput, error) {
	doc, err := h.store.Get()
	if err != nil {
		logging.FromContext(ctx, h.logger).Warn("failed to read settings", "error", err)
		return &SettingsOutput{Body: json.RawMessage("null")}, nil
	}
	return &SettingsOutput{Body: doc}, nil
}

// Save overwrites the settings with the request body.
func (h *SettingsHandler) Save(ctx context.Context, input *SaveSettingsInput) (*SaveSettingsOutput, error) {
	body := input.RawBody
	if len(body) == 0 {
		body = []byte("null")
	}
	if err := h.store.Save(json.RawMessage(body)); err != nil {
		if errors.Is(err, settings.ErrInvalidDocument) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		logging.FromContext(ctx, h.logger).Error("failed to save settings", "error", err)
		return nil, huma.Error500InternalServerError("failed to save settings")
	}
	out := &SaveSettingsOutput{}
	out.Body.Message = "settings saved"
	return out, nil
}

// Register adds GET and POST /settings.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Read settings",
		Description: "Returns the last saved settings document, or null",
		Tags:        []string{"Settings"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "saveSettings",
		Method:      http.MethodPost,
		Path:        "/settings",
		Summary:     "Save settings",
		Description: "Replaces the settings document",
		Tags:        []string{"Settings"},
	}, h.Save)
}
