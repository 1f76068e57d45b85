// Package handlers provides HTTP handlers for the side-api service.
package handlers

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/side-api/internal/models"
)

// UseErrorEnvelope makes huma render every error as
// {"success": false, "error": "..."}. Call it once before registering
// operations.
func UseErrorEnvelope() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		details := make([]string, 0, len(errs))
		for _, err := range errs {
			if err != nil {
				details = append(details, err.Error())
			}
		}
		if len(details) > 0 {
			msg += ": " + strings.Join(details, "; ")
		}
		return models.NewErrorResponse(status, msg)
	}
}
