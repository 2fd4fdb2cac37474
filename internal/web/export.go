package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/render"

	"github.com/skukla/kukla-integration-service-sub006/pkg/commerce"
	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/pipeline"
	"github.com/skukla/kukla-integration-service-sub006/pkg/storage"
)

// errorEnvelope is the failure response shape. Details carries the wrapped
// error chain and is omitted in production.
type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Steps   []string `json:"steps,omitempty"`
}

// handleExport runs one export. The request body optionally carries
// ExportOptions overrides; an empty body runs with configured defaults.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var opts config.ExportOptions
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &opts); err != nil {
			s.renderError(w, r, http.StatusBadRequest, fmt.Errorf("decode export options: %w", err), nil)
			return
		}
	}
	if err := opts.Validate(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	res, err := s.orch.Execute(r.Context(), opts)
	if err != nil {
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) {
			s.renderError(w, r, statusFor(runErr.Err), runErr, runErr.Steps)
			return
		}
		s.renderError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, err error, steps []string) {
	env := errorEnvelope{
		Error: err.Error(),
		Steps: steps,
	}

	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		env.Error = fmt.Sprintf("export failed during %s stage", runErr.State)
		if !s.cfg.IsProd() {
			env.Details = runErr.Err.Error()
		}
	}

	render.Status(r, status)
	render.JSON(w, r, env)
}

// statusFor maps a run failure onto the response status: credential
// failures 401, upstream timeouts 504, upstream HTTP and connection
// failures 502, anything else 500.
func statusFor(err error) int {
	var authErr *commerce.AuthError
	var timeoutErr *commerce.TimeoutError
	var httpErr *commerce.HTTPError
	var storErr *storage.Error
	var urlErr *url.Error

	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &timeoutErr),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr),
		errors.As(err, &storErr),
		errors.As(err, &urlErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
