package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cueso/internal/observability"
)

// ContentMatch is a single streaming service match with the details a
// Roku deep link needs.
type ContentMatch struct {
	ServiceName string `json:"service_name"`
	ChannelID   int    `json:"channel_id"`
	ContentID   string `json:"content_id"`
	SourceURL   string `json:"source_url"`
	Title       string `json:"title"`
	MediaType   string `json:"media_type"`
}

// ContentSearchResult is the outcome of searching streaming services
// for a title.
type ContentSearchResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Query   string         `json:"query"`
	Matches []ContentMatch `json:"matches"`
}

// ToToolResult serializes the result for return as an LLM tool result.
func (r ContentSearchResult) ToToolResult() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"message":"encode error: %s"}`, err)
	}
	return string(data)
}

// Query is a structured content lookup.
type Query struct {
	// Title is the content title, e.g. "Rick and Morty" (required).
	Title string

	// Season and Episode, when > 0, narrow the search.
	Season  int
	Episode int

	// EpisodeTitle sharpens episode-level searches.
	EpisodeTitle string

	// MediaType overrides the matched service's default mediaType.
	MediaType string
}

// BuildQuery flattens a structured query into search text.
func BuildQuery(q Query) string {
	parts := []string{q.Title}
	if q.Season > 0 {
		parts = append(parts, fmt.Sprintf("Season %d", q.Season))
	}
	if q.Episode > 0 {
		parts = append(parts, fmt.Sprintf("Episode %d", q.Episode))
	}
	if q.EpisodeTitle != "" {
		parts = append(parts, q.EpisodeTitle)
	}
	return strings.Join(parts, " ")
}

// Pipeline runs the content search flow: scope a web search to the
// streaming services' domains, then match result URLs back to services
// and extract content IDs. One match per service, priority order.
type Pipeline struct {
	brave    *BraveClient
	services []Service
	logger   *observability.Logger
}

// NewPipeline creates a content search pipeline over the given services.
func NewPipeline(brave *BraveClient, services []Service) *Pipeline {
	if len(services) == 0 {
		services = DefaultServices()
	}
	return &Pipeline{
		brave:    brave,
		services: services,
		logger:   observability.NewLogger(observability.LogConfig{}),
	}
}

// SetLogger replaces the pipeline's logger.
func (p *Pipeline) SetLogger(logger *observability.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Services returns the pipeline's priority-ordered services.
func (p *Pipeline) Services() []Service {
	return p.services
}

// Search finds every service carrying the queried content. The result
// is always well-formed; failures are reported in Success/Message
// rather than as errors, so the text can go straight back to the model.
func (p *Pipeline) Search(ctx context.Context, q Query) ContentSearchResult {
	baseQuery := BuildQuery(q)
	fullQuery := baseQuery + " " + SiteFilters(p.services)

	p.logger.Info(ctx, "searching streaming services", "query", fullQuery)

	results, err := p.brave.Search(ctx, fullQuery, 10, "")
	if err != nil {
		return ContentSearchResult{
			Success: false,
			Message: fmt.Sprintf("Search failed: %v", err),
			Query:   baseQuery,
			Matches: []ContentMatch{},
		}
	}

	if len(results) == 0 {
		return ContentSearchResult{
			Success: false,
			Message: fmt.Sprintf("No search results found for: %s", baseQuery),
			Query:   baseQuery,
			Matches: []ContentMatch{},
		}
	}

	// One match per service; the first URL wins for that service.
	var matches []ContentMatch
	seen := make(map[string]bool)

	for _, result := range results {
		svc, contentID, ok := MatchURL(result.URL, p.services)
		if !ok || seen[svc.Name] {
			continue
		}
		seen[svc.Name] = true

		mediaType := q.MediaType
		if mediaType == "" {
			mediaType = svc.DefaultMediaType
		}

		matches = append(matches, ContentMatch{
			ServiceName: svc.Name,
			ChannelID:   svc.ChannelID,
			ContentID:   contentID,
			SourceURL:   result.URL,
			Title:       result.Title,
			MediaType:   mediaType,
		})
		p.logger.Info(ctx, "matched streaming URL", "service", svc.Name, "content_id", contentID, "url", result.URL)
	}

	if len(matches) == 0 {
		limit := len(results)
		if limit > 5 {
			limit = 5
		}
		urls := make([]string, 0, limit)
		for _, result := range results[:limit] {
			urls = append(urls, result.URL)
		}
		return ContentSearchResult{
			Success: false,
			Message: fmt.Sprintf("Found %d results but no streaming service URLs matched. Top URLs: %s", len(results), strings.Join(urls, ", ")),
			Query:   baseQuery,
			Matches: []ContentMatch{},
		}
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.ServiceName)
	}

	return ContentSearchResult{
		Success: true,
		Message: fmt.Sprintf("Found content on %d service(s): %s", len(matches), strings.Join(names, ", ")),
		Query:   baseQuery,
		Matches: matches,
	}
}
