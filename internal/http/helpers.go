package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"designledger/internal/core"
	"designledger/internal/inventory"
	applog "designledger/internal/log"
)

var validationErrors = []error{
	core.ErrInvalidDay,
	core.ErrInvalidMonth,
	core.ErrInvalidAmount,
	core.ErrEmptyName,
	core.ErrEmptySource,
	core.ErrEmptyDescription,
	core.ErrDescriptionTooLong,
	core.ErrInvalidTransactionType,
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeServiceError maps inventory errors to status codes. Anything
// unrecognised is logged and reported as a 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		NotFoundError("Not found").Write(w)
	case errors.Is(err, inventory.ErrSameTransaction),
		errors.Is(err, inventory.ErrAlreadyInInventory),
		isValidationError(err):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, context.DeadlineExceeded):
		s.requestLogger(r).WarnContext(r.Context(), "Request timed out",
			applog.FieldOperation, operation,
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusGatewayTimeout, "The request took too long").Write(w)
	default:
		applog.NewStructuredLogger(s.requestLogger(r)).LogError(r.Context(), "Inventory operation failed", err,
			applog.ComponentInventory, operation,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", ""))
		InternalServerError("Something went wrong").Write(w)
	}
}

// requestLogger returns the request scoped logger set by the trace
// middleware.
func (s *Server) requestLogger(r *http.Request) *applog.Logger {
	return applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP)
}

// render executes a template into a buffer so a failing template never
// leaves a half written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	if s.templates == nil {
		s.requestLogger(r).ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path)
		InternalServerError("Templates not loaded").Write(w)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.requestLogger(r).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name,
			applog.FieldOperation, applog.OpRender)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	if b == nil {
		b = NewHTMXResponse()
	}
	b.BodyHTML(buf.String()).Write(w)
}
