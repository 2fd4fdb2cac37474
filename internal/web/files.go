package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/export"
	"github.com/skukla/kukla-integration-service-sub006/pkg/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// fileRow is one row of the file browser table.
type fileRow struct {
	Name        string
	Size        string
	Modified    string
	DownloadURL string
}

type filesPageData struct {
	Env      string
	Provider string
	Disabled bool
}

type fileTableData struct {
	Rows    []fileRow
	Message string
}

func (s *Server) handleFilesPage(w http.ResponseWriter, r *http.Request) {
	data := filesPageData{
		Env:      s.cfg.Env,
		Provider: s.cfg.Storage.Provider,
		Disabled: s.orch.Gateway() == nil,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "files.html", data); err != nil {
		s.logger.Error().Err(err).Msg("render files page")
	}
}

func (s *Server) handleFilesTable(w http.ResponseWriter, r *http.Request) {
	s.renderTable(w, r)
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if err := config.ValidateFilename(name); err != nil {
		s.renderError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	gw := s.orch.Gateway()
	if gw == nil {
		s.renderError(w, r, http.StatusServiceUnavailable,
			errors.New("storage is not configured in dev mode"), nil)
		return
	}

	data, err := gw.Read(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, fmt.Errorf("no export named %q", name), nil)
			return
		}
		s.renderError(w, r, http.StatusBadGateway, err, nil)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := config.ValidateFilename(name); err != nil {
		s.renderError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	gw := s.orch.Gateway()
	if gw == nil {
		s.renderError(w, r, http.StatusServiceUnavailable,
			errors.New("storage is not configured in dev mode"), nil)
		return
	}

	if err := gw.Delete(r.Context(), name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, fmt.Errorf("no export named %q", name), nil)
			return
		}
		s.renderError(w, r, http.StatusBadGateway, err, nil)
		return
	}

	s.logger.Info().Str("name", name).Msg("export deleted")
	s.renderTable(w, r)
}

// renderTable writes the table partial the browser swaps into the page.
func (s *Server) renderTable(w http.ResponseWriter, r *http.Request) {
	var data fileTableData

	gw := s.orch.Gateway()
	if gw == nil {
		data.Message = "Storage is not configured in dev mode; exports are not persisted."
	} else {
		infos, err := gw.List(r.Context(), "")
		if err != nil {
			s.logger.Error().Err(err).Msg("list exports")
			data.Message = "Failed to list exports."
		} else {
			sort.Slice(infos, func(i, j int) bool {
				return infos[i].LastModified.After(infos[j].LastModified)
			})
			for _, o := range infos {
				data.Rows = append(data.Rows, fileRow{
					Name:        o.Name,
					Size:        formatSize(o.Size),
					Modified:    o.LastModified.UTC().Format("2006-01-02 15:04 MST"),
					DownloadURL: "/files/download?name=" + url.QueryEscape(o.Name),
				})
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "table.html", data); err != nil {
		s.logger.Error().Err(err).Msg("render file table")
	}
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
