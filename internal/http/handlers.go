package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	applog "designledger/internal/log"
	"designledger/internal/services"
)

// handleHealth reports liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and the backing store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := map[string]any{}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.ready == nil:
		checks["store"] = "ok"
	default:
		if err := s.ready(ctx); err != nil {
			s.requestLogger(r).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			checks["store"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}
	checks["security"] = map[string]any{"suspicious_requests": s.detector.SuspiciousRequests()}
	checks["trace"] = map[string]any{"total_requests": s.tracer.TotalRequests()}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	d, err := s.inventory.Dashboard(ctx)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpList)
		return
	}
	s.render(w, r, nil, "dashboard.html", d)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := s.inventory.Project(ctx, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpRead)
		return
	}
	s.render(w, r, nil, "project.html", view)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.requestLogger(r).WarnContext(r.Context(), "Parse body error", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		BadRequestError("Invalid request body").Write(w)
		return
	}
	p, err := ParseProjectForm(parser)
	if err != nil {
		UnprocessableEntityError("Invalid project: " + err.Error()).Write(w)
		return
	}

	created, err := s.inventory.CreateProject(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpCreate)
		return
	}
	s.requestLogger(r).InfoContext(r.Context(), "Project created",
		applog.FieldProjectID, created.ID,
		applog.FieldOperation, applog.OpCreate)

	b := NewHTMXResponse().
		TriggerProjectCreated(created.ID).
		TriggerFormReset().
		TriggerSuccessNotification("Project created")
	s.render(w, r, b, "project_row", services.ProjectSummary{Project: created})
}
