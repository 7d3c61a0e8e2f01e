// Package search finds where a title is streaming. It combines a Brave
// web search scoped to streaming service domains with a registry of URL
// patterns that extract each service's content ID for Roku deep links.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// braveSearchURL is the Brave Web Search API endpoint.
const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

const (
	defaultBraveTimeout = 10 * time.Second
	maxBraveCount       = 20
)

// Result is a single web search result.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// BraveConfig configures the Brave Search client.
type BraveConfig struct {
	// APIKey is the Brave subscription token (required).
	APIKey string

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string

	// Timeout bounds each search request. Default: 10s.
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// BraveClient calls the Brave Web Search API.
type BraveClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewBraveClient creates a Brave Search client.
func NewBraveClient(cfg BraveConfig) (*BraveClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("brave: API key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = braveSearchURL
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultBraveTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &BraveClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
	}, nil
}

type braveResponse struct {
	Web struct {
		Results []Result `json:"results"`
	} `json:"web"`
}

// Search runs a web search. count is clamped to the API's limit of 20;
// freshness, when set, is one of the API's window codes (pd, pw, pm, py).
func (c *BraveClient) Search(ctx context.Context, query string, count int, freshness string) ([]Result, error) {
	if count <= 0 {
		count = 10
	}
	if count > maxBraveCount {
		count = maxBraveCount
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	if freshness != "" {
		params.Set("freshness", freshness)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("brave: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave: search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("brave: parse response: %w", err)
	}

	return parsed.Web.Results, nil
}
