package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

// createProjectRequest is the wire shape for POST /api/projects, matching
// spec §6.1: only name is required, everything else resolves to documented
// defaults when omitted. Targets are created alongside the project so a
// caller can seed a crawl in one request.
type createProjectRequest struct {
	Name            string                `json:"name" validate:"required"`
	Description     string                `json:"description"`
	ArchiveSource   models.ArchiveSource   `json:"archive_source" validate:"omitempty,oneof=wayback_machine common_crawl hybrid"`
	FallbackEnabled *bool                 `json:"fallback_enabled"`
	ArchiveConfig   *archiveConfigRequest `json:"archive_config"`
	Targets         []createTargetRequest `json:"targets"`
}

// archiveConfigRequest is the optional archive_config object from §6.1; every
// field is a pointer so "not present" and "explicitly zero" are distinguishable.
type archiveConfigRequest struct {
	FallbackStrategy     string                `json:"fallback_strategy" validate:"omitempty,oneof=immediate retry_then_fallback circuit_breaker"`
	FallbackDelaySeconds *float64              `json:"fallback_delay_seconds" validate:"omitempty,min=0,max=300"`
	ExponentialBackoff   *bool                 `json:"exponential_backoff"`
	MaxFallbackDelay     *int                  `json:"max_fallback_delay" validate:"omitempty,min=1,max=3600"`
	WaybackMachine       *sourceConfigRequest  `json:"wayback_machine"`
	CommonCrawl          *sourceConfigRequest  `json:"common_crawl"`
}

type sourceConfigRequest struct {
	Enabled            *bool `json:"enabled"`
	TimeoutSeconds     *int  `json:"timeout_seconds" validate:"omitempty,min=10,max=600"`
	MaxRetries         *int  `json:"max_retries" validate:"omitempty,min=0,max=10"`
	PageSize           *int  `json:"page_size" validate:"omitempty,min=100,max=50000"`
	MaxPages           *int  `json:"max_pages" validate:"omitempty,min=0"`
	IncludeAttachments *bool `json:"include_attachments"`
	Priority           *int  `json:"priority" validate:"omitempty,min=1,max=100"`
}

type createTargetRequest struct {
	Domain             string           `json:"domain" validate:"required"`
	MatchType          models.MatchType `json:"match_type" validate:"required,oneof=host_exact subdomain prefix"`
	URLPath            string           `json:"url_path"`
	FromDate           string           `json:"from_date"`
	ToDate             string           `json:"to_date"`
	IncludeAttachments bool             `json:"include_attachments"`
	IncludePatterns    []string         `json:"include_patterns"`
	ExcludePatterns    []string         `json:"exclude_patterns"`
}

// patchProjectRequest carries only the fields the caller actually wants to
// change; nil means leave as-is.
type patchProjectRequest struct {
	Name            *string               `json:"name"`
	Description     *string               `json:"description"`
	ArchiveSource   *models.ArchiveSource `json:"archive_source"`
	FallbackEnabled *bool                 `json:"fallback_enabled"`
	ArchiveConfig   *archiveConfigRequest `json:"archive_config"`
}

// handleProjectsCollection handles GET (list) and POST (create) on /api/projects.
func (s *Server) handleProjectsCollection(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.listProjects, s.createProject)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.app.Storage.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}

	archiveSource := req.ArchiveSource
	if archiveSource == "" {
		archiveSource = models.ArchiveSourceWayback
	}

	archive, errs := resolveArchiveConfig(archiveSource, req.FallbackEnabled, req.ArchiveConfig)
	if len(errs) > 0 {
		writeValidationErrors(w, errs)
		return
	}

	targets := make([]*models.Target, 0, len(req.Targets))
	for i, t := range req.Targets {
		target, terrs := targetFromRequest(t)
		if len(terrs) > 0 {
			for j := range terrs {
				terrs[j].Field = fmt.Sprintf("targets[%d].%s", i, terrs[j].Field)
			}
			errs = append(errs, terrs...)
			continue
		}
		targets = append(targets, target)
	}
	if len(errs) > 0 {
		writeValidationErrors(w, errs)
		return
	}

	project := &models.Project{
		Name:        req.Name,
		Description: req.Description,
		Archive:     archive,
	}
	if err := s.app.Storage.CreateProject(r.Context(), project); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, target := range targets {
		target.ProjectID = project.ID
		if err := s.app.Storage.CreateTarget(r.Context(), target); err != nil {
			writeError(w, http.StatusInternalServerError, "project created but target "+target.Domain+" failed: "+err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, project)
}

// resolveArchiveConfig merges the request's optional archive_config onto the
// §6.1 defaults for the chosen archive_source, rejecting "commoncrawl" (the
// non-canonical spelling) via the oneof validation on createProjectRequest
// itself and enforcing fallback_enabled=true whenever archive_source=hybrid.
func resolveArchiveConfig(source models.ArchiveSource, fallbackEnabled *bool, req *archiveConfigRequest) (models.ArchiveConfig, []fieldError) {
	cfg := models.DefaultArchiveConfig()
	cfg.ArchiveSource = source

	if fallbackEnabled != nil {
		cfg.FallbackEnabled = *fallbackEnabled
	}
	if source == models.ArchiveSourceHybrid && !cfg.FallbackEnabled {
		return cfg, []fieldError{{
			Field:   "fallback_enabled",
			Message: "must be true when archive_source is hybrid",
			Code:    "required_with_hybrid",
		}}
	}

	if req == nil {
		return cfg, nil
	}
	if req.FallbackStrategy != "" {
		cfg.FallbackPolicy = req.FallbackStrategy
	}
	if req.FallbackDelaySeconds != nil {
		cfg.FallbackDelaySeconds = *req.FallbackDelaySeconds
	}
	if req.ExponentialBackoff != nil {
		cfg.ExponentialBackoff = *req.ExponentialBackoff
	}
	if req.MaxFallbackDelay != nil {
		cfg.MaxFallbackDelay = *req.MaxFallbackDelay
	}
	applySourceConfig(&cfg.WaybackMachine, req.WaybackMachine)
	applySourceConfig(&cfg.CommonCrawl, req.CommonCrawl)

	return cfg, nil
}

func applySourceConfig(dst *models.SourceConfig, req *sourceConfigRequest) {
	if req == nil {
		return
	}
	if req.Enabled != nil {
		dst.Enabled = *req.Enabled
	}
	if req.TimeoutSeconds != nil {
		dst.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.MaxRetries != nil {
		dst.MaxRetries = *req.MaxRetries
	}
	if req.PageSize != nil {
		dst.PageSize = *req.PageSize
	}
	if req.MaxPages != nil {
		dst.MaxPages = *req.MaxPages
	}
	if req.IncludeAttachments != nil {
		dst.IncludeAttachments = *req.IncludeAttachments
	}
	if req.Priority != nil {
		dst.Priority = *req.Priority
	}
}

// targetFromRequest converts the wire shape into a models.Target, enforcing
// the §3 Target invariants: from_date <= to_date, and match_type=prefix
// requires a non-empty url_path.
func targetFromRequest(t createTargetRequest) (*models.Target, []fieldError) {
	var errs []fieldError

	if t.MatchType == models.MatchTypePrefix && strings.TrimSpace(t.URLPath) == "" {
		errs = append(errs, fieldError{Field: "url_path", Message: "required when match_type is prefix", Code: "required_with_prefix"})
	}

	from, err := parseDate(t.FromDate)
	if err != nil {
		errs = append(errs, fieldError{Field: "from_date", Message: err.Error(), Code: "invalid_date"})
	}
	to, err := parseDate(t.ToDate)
	if err != nil {
		errs = append(errs, fieldError{Field: "to_date", Message: err.Error(), Code: "invalid_date"})
	}
	if from != nil && to != nil && from.After(*to) {
		errs = append(errs, fieldError{Field: "from_date", Message: "must not be after to_date", Code: "date_range"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return &models.Target{
		Domain:             t.Domain,
		MatchType:          t.MatchType,
		URLPath:            t.URLPath,
		IncludeAttachments: t.IncludeAttachments,
		IncludePatterns:    t.IncludePatterns,
		ExcludePatterns:    t.ExcludePatterns,
		DateRangeStart:     from,
		DateRangeEnd:       to,
	}, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("must be YYYY-MM-DD")
	}
	return &t, nil
}

// handleProjectItem dispatches everything under /api/projects/{id}, including
// the /scrape, /scrape-pages, and nested manual-processing bulk suffixes.
func (s *Server) handleProjectItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	projectID := parts[0]
	if projectID == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1:
		RouteResourceItem(w, r, s.getProjectHandler(projectID), s.patchProjectHandler(projectID), s.deleteProjectHandler(projectID))
	case len(parts) == 2 && parts[1] == "scrape":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.startScrape(w, r, projectID)
	case len(parts) == 2 && parts[1] == "scrape-pages":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.listScrapePages(w, r, projectID)
	case len(parts) == 4 && parts[1] == "scrape-pages" && parts[2] == "manual-processing" && parts[3] == "bulk":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.bulkScrapePageAction(w, r, projectID, false)
	case len(parts) == 5 && parts[1] == "scrape-pages" && parts[2] == "manual-processing" && parts[3] == "bulk" && parts[4] == "preview":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.bulkScrapePageAction(w, r, projectID, true)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) getProjectHandler(projectID string) RouteHandler {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := s.app.Storage.GetProject(r.Context(), projectID)
		if err != nil {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeJSON(w, http.StatusOK, project)
	}
}

func (s *Server) patchProjectHandler(projectID string) RouteHandler {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := s.app.Storage.GetProject(r.Context(), projectID)
		if err != nil {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}

		var req patchProjectRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if req.Name != nil {
			project.Name = *req.Name
		}
		if req.Description != nil {
			project.Description = *req.Description
		}
		if req.ArchiveSource != nil || req.FallbackEnabled != nil || req.ArchiveConfig != nil {
			source := project.Archive.ArchiveSource
			if req.ArchiveSource != nil {
				source = *req.ArchiveSource
			}
			if source != models.ArchiveSourceWayback && source != models.ArchiveSourceCommonCrawl && source != models.ArchiveSourceHybrid {
				writeValidationErrors(w, []fieldError{{Field: "archive_source", Message: "must be one of wayback_machine, common_crawl, hybrid", Code: "oneof"}})
				return
			}
			fallbackEnabled := req.FallbackEnabled
			if fallbackEnabled == nil {
				fe := project.Archive.FallbackEnabled
				fallbackEnabled = &fe
			}
			archive, errs := resolveArchiveConfig(source, fallbackEnabled, req.ArchiveConfig)
			if len(errs) > 0 {
				writeValidationErrors(w, errs)
				return
			}
			project.Archive = archive
		}

		if err := s.app.Storage.UpdateProject(r.Context(), project); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, project)
	}
}

func (s *Server) deleteProjectHandler(projectID string) RouteHandler {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.app.Storage.DeleteProject(r.Context(), projectID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// startScrape creates a new Session for the project and hands it to the
// pipeline, which enqueues the scrape_project job that fans out target
// discovery across the Job Engine.
func (s *Server) startScrape(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, err := s.app.Storage.GetProject(r.Context(), projectID); err != nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	session := &models.Session{ProjectID: projectID}
	if err := s.app.Storage.CreateSession(r.Context(), session); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := s.app.Pipeline.StartScrape(r.Context(), projectID, session.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session": session,
		"job":     job,
	})
}
