package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/cueso/internal/roku"
	"github.com/haasonsaas/cueso/internal/sessions"
)

func newAPIServer(t *testing.T, rokuClient *roku.Client) (*httptest.Server, *sessions.Store) {
	t.Helper()
	store := sessions.NewStore(sessions.StoreConfig{})
	t.Cleanup(store.Close)

	mux := http.NewServeMux()
	NewAPIHandler(store, rokuClient).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func decodeJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestSessionsIndex(t *testing.T) {
	srv, store := newAPIServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var list sessionListResponse
	decodeJSON(t, resp, &list)
	if list.Count != 0 || list.Sessions == nil {
		t.Errorf("empty store list = %+v", list)
	}

	session, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resp, err = http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	decodeJSON(t, resp, &list)
	if list.Count != 1 || list.Sessions[0].ID != session.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestSessionDelete(t *testing.T) {
	srv, store := newAPIServer(t, nil)
	session, _ := store.Create(context.Background())

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+session.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := store.Get(context.Background(), session.ID); err == nil {
		t.Error("session survived delete")
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/nope", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing session status = %d", resp.StatusCode)
	}
}

func TestSessionReset(t *testing.T) {
	srv, store := newAPIServer(t, nil)
	session, _ := store.Create(context.Background())
	session.IterationCount = 3

	resp, err := http.Post(srv.URL+"/api/sessions/"+session.ID+"/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got, err := store.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IterationCount != 0 || len(got.Messages) != 0 {
		t.Errorf("session after reset = %+v", got)
	}

	resp, err = http.Post(srv.URL+"/api/sessions/nope/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing session status = %d", resp.StatusCode)
	}
}

func TestDirectLaunch(t *testing.T) {
	var gotPath string
	tv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer tv.Close()

	rokuClient, err := roku.NewClient(roku.Config{BaseURL: tv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv, _ := newAPIServer(t, rokuClient)

	body := strings.NewReader(`{"channel_id":12,"content_id":"70143836","media_type":"movie"}`)
	resp, err := http.Post(srv.URL+"/api/roku/launch", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var launch launchResponse
	decodeJSON(t, resp, &launch)

	if !launch.Success || launch.Message != "Launched channel 12 with content ID 70143836." {
		t.Errorf("response = %+v", launch)
	}
	if !strings.HasPrefix(gotPath, "/launch/12?") || !strings.Contains(gotPath, "contentId=70143836") {
		t.Errorf("launch path = %q", gotPath)
	}
}

func TestDirectLaunchBadStatus(t *testing.T) {
	tv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer tv.Close()

	rokuClient, err := roku.NewClient(roku.Config{BaseURL: tv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv, _ := newAPIServer(t, rokuClient)

	body := strings.NewReader(`{"channel_id":12,"content_id":"70143836"}`)
	resp, err := http.Post(srv.URL+"/api/roku/launch", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var launch launchResponse
	decodeJSON(t, resp, &launch)
	if launch.Success || launch.Message != "Roku returned status 404." {
		t.Errorf("response = %+v", launch)
	}
}

func TestDirectLaunchValidation(t *testing.T) {
	srv, _ := newAPIServer(t, nil)

	// No roku client configured.
	resp, err := http.Post(srv.URL+"/api/roku/launch", "application/json", strings.NewReader(`{"channel_id":12}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}

	tv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer tv.Close()
	rokuClient, err := roku.NewClient(roku.Config{BaseURL: tv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv2, _ := newAPIServer(t, rokuClient)

	resp, err = http.Post(srv2.URL+"/api/roku/launch", "application/json", strings.NewReader(`{"content_id":"x"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing channel_id status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newAPIServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var health map[string]string
	decodeJSON(t, resp, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
}
