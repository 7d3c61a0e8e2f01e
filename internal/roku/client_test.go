package roku

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestLaunchBuildsDeepLink(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))

	status, err := client.Launch(context.Background(), "12", "70143836", "series")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	if gotMethod != http.MethodPost || gotPath != "/launch/12" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotQuery != "contentId=70143836&mediaType=series" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestLaunchWithoutDeepLink(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	status, err := client.Launch(context.Background(), "12", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusNoContent {
		t.Errorf("status = %d", status)
	}

	if _, err := client.Launch(context.Background(), "  ", "", ""); err == nil {
		t.Error("expected error for empty channel_id")
	}
}

func TestKeypress(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.Keypress(context.Background(), "Home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/keypress/Home" {
		t.Errorf("path = %q", gotPath)
	}

	if err := client.Keypress(context.Background(), "SelfDestruct"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestDeviceInfo(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query/device-info" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" ?>
<device-info>
  <model-name>Roku Ultra</model-name>
  <model-number>4800X</model-number>
  <serial-number>YH00AB123456</serial-number>
  <friendly-device-name>Living Room</friendly-device-name>
  <software-version>12.5.0</software-version>
  <power-mode>PowerOn</power-mode>
  <is-tv>false</is-tv>
</device-info>`))
	}))

	info, err := client.DeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ModelName != "Roku Ultra" || info.DeviceName != "Living Room" {
		t.Errorf("parsed info = %+v", info)
	}
	if info.PowerMode != "PowerOn" || info.IsTV {
		t.Errorf("parsed state = %+v", info)
	}
}

func TestActiveApp(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<active-app><app id="12" type="appl" version="4.2.81">Netflix</app></active-app>`))
	}))

	app, err := client.ActiveApp(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.ID != "12" || app.Name != "Netflix" {
		t.Errorf("app = %+v", app)
	}
}

func TestApps(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<apps>
  <app id="12" type="appl" version="4.2.81">Netflix</app>
  <app id="2285" type="appl" version="6.33.0">Hulu</app>
</apps>`))
	}))

	apps, err := client.Apps(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(apps))
	}
	if apps[1].ID != "2285" || apps[1].Name != "Hulu" {
		t.Errorf("apps = %+v", apps)
	}
}

func TestSearch(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/browse" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))

	err := client.Search(context.Background(), SearchParams{
		Keyword: "the office",
		Type:    "tv-show",
		Launch:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "keyword=the+office&launch=true&type=tv-show" {
		t.Errorf("query = %q", gotQuery)
	}

	if err := client.Search(context.Background(), SearchParams{}); err == nil {
		t.Error("expected error for empty keyword")
	}
}

func TestQueryErrorStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if _, err := client.DeviceInfo(context.Background()); err == nil {
		t.Error("expected error for 503 response")
	}
	if err := client.Keypress(context.Background(), "Home"); err == nil {
		t.Error("expected error for 503 keypress")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for missing host")
	}

	client, err := NewClient(Config{Host: "192.168.1.50"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.baseURL != "http://192.168.1.50:8060" {
		t.Errorf("baseURL = %q", client.baseURL)
	}
}
