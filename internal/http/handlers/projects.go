package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genesis/internal/domain"
	"genesis/internal/validation"
	"genesis/pkg/zip"
)

const maxGenerateBody = 1 << 20

// Generate handles POST /generate.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req validation.GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerateBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			a.error(w, http.StatusBadRequest, CodeValidation, "Request body is required")
			return
		}
		a.error(w, http.StatusBadRequest, CodeValidation, "Invalid JSON body", err.Error())
		return
	}

	id, err := a.Projects.Submit(r.Context(), req.Prompt, req.Backend, req.Metadata)
	if err != nil {
		if errors.Is(err, domain.ErrQueueFull) && id != "" {
			a.error(w, http.StatusServiceUnavailable, CodeAICore, "Generation queue is full, try again later", "project "+id+" was marked Failed")
			return
		}
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusAccepted, "Project generation started", id)
}

// ListProjects handles GET /projects.
func (a *App) ListProjects(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jobs, err := a.Projects.List(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, fmt.Sprintf("Found %d projects", len(jobs)), jobs)
}

// GetProject handles GET /projects/{id}.
func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
	job, err := a.Projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, "Project retrieved successfully", job)
}

// ArchiveProject handles GET /projects/{id}/archive and streams the files of a
// completed project as a zip.
func (a *App) ArchiveProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Projects.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if job.Status != domain.StatusCompleted {
		a.error(w, http.StatusConflict, CodeConflict, fmt.Sprintf("Project is %s, only Completed projects can be archived", job.Status))
		return
	}

	files := make([]zip.File, 0, len(job.Files))
	for _, f := range job.Files {
		entry := zip.File{Name: f.Name, Data: []byte(f.Content), Modified: job.UpdatedAt}
		if f.LastModified != nil {
			entry.Modified = *f.LastModified
		}
		files = append(files, entry)
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".zip"))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, id, files); err != nil {
		a.Logger.Error().Err(err).Str("project_id", id).Msg("archive write failed")
	}
}

// Stats handles GET /stats.
func (a *App) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.Projects.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	total := 0
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}
	data := map[string]any{
		"total":     total,
		"by_status": byStatus,
	}
	if a.Pool != nil {
		data["workers"] = a.Pool.Metrics()
	}
	a.ok(w, http.StatusOK, "Project statistics", data)
}

func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	var filter domain.ListFilter
	var problems []string

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			problems = append(problems, "limit: must be a positive integer")
		}
		filter.Limit = n
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			problems = append(problems, "skip: must be a non-negative integer")
		}
		filter.Skip = n
	}
	if v := q.Get("status"); v != "" {
		status := domain.Status(v)
		if !status.Valid() {
			problems = append(problems, "status: must be one of Pending, Generating, Completed, Failed")
		}
		filter.Status = &status
	}
	if v := q.Get("backend"); v != "" {
		backend := domain.Backend(v)
		if !backend.Valid() {
			problems = append(problems, "backend: must be 'ollama' or 'openai'")
		}
		filter.Backend = &backend
	}
	if len(problems) > 0 {
		return domain.ListFilter{}, &domain.ValidationError{Messages: problems}
	}
	return filter.Normalize(), nil
}
