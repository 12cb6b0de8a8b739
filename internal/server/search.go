package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/linksmith/chrono-scraper-sub002/internal/models"
)

const defaultSearchLimit = 20

// searchResult is the wire shape for one search hit: the stored Page plus a
// rendered HTML preview of its markdown content, since API consumers (the
// dashboard UI) display results without shipping a markdown renderer
// themselves.
type searchResult struct {
	*models.Page
	SnippetHTML string `json:"snippet_html"`
}

// handleSearch implements GET /api/search?q=...&limit=..., querying the
// transactional store's SearchPages (not the configured search sink) for
// full-text matches and rendering each
// hit's markdown content to HTML via goldmark for display.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	pages, err := s.app.Storage.SearchPages(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]searchResult, 0, len(pages))
	for _, p := range pages {
		results = append(results, searchResult{Page: p, SnippetHTML: renderSnippet(p.ContentMarkdown)})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
	})
}

// renderSnippet converts markdown to HTML for display, truncating the
// source first so a single huge page can't blow up a search results page.
func renderSnippet(markdown string) string {
	const maxSourceRunes = 600
	runes := []rune(markdown)
	if len(runes) > maxSourceRunes {
		markdown = string(runes[:maxSourceRunes]) + "…"
	}

	var buf strings.Builder
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return ""
	}
	return buf.String()
}
