package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBraveSearch(t *testing.T) {
	var gotToken, gotQuery, gotCount, gotFreshness string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		gotFreshness = r.URL.Query().Get("freshness")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"The Office","url":"https://www.netflix.com/title/70143836","description":"Watch now"},
			{"title":"The Office Wiki","url":"https://en.wikipedia.org/wiki/The_Office","description":"Sitcom"}
		]}}`))
	}))
	defer server.Close()

	client, err := NewBraveClient(BraveConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewBraveClient: %v", err)
	}

	results, err := client.Search(context.Background(), "the office", 5, "pm")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "The Office" || results[0].URL != "https://www.netflix.com/title/70143836" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if gotToken != "test-key" {
		t.Errorf("subscription token = %q", gotToken)
	}
	if gotQuery != "the office" || gotCount != "5" || gotFreshness != "pm" {
		t.Errorf("query params = q:%q count:%q freshness:%q", gotQuery, gotCount, gotFreshness)
	}
}

func TestBraveSearchClampsCount(t *testing.T) {
	var gotCount string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCount = r.URL.Query().Get("count")
		w.Write([]byte(`{"web":{"results":[]}}`))
	}))
	defer server.Close()

	client, err := NewBraveClient(BraveConfig{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewBraveClient: %v", err)
	}

	if _, err := client.Search(context.Background(), "q", 100, ""); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotCount != "20" {
		t.Errorf("count should be clamped to 20, got %q", gotCount)
	}

	if _, err := client.Search(context.Background(), "q", 0, ""); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotCount != "10" {
		t.Errorf("count should default to 10, got %q", gotCount)
	}
}

func TestBraveSearchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client, err := NewBraveClient(BraveConfig{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewBraveClient: %v", err)
	}

	if _, err := client.Search(context.Background(), "q", 10, ""); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestNewBraveClientRequiresKey(t *testing.T) {
	if _, err := NewBraveClient(BraveConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
