// Package roku wraps a Roku device's External Control Protocol (ECP),
// the plain HTTP API every Roku exposes on port 8060: channel launch
// with deep-link parameters, remote key presses, content search, and
// device queries.
package roku

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is the fixed ECP port on Roku devices.
	DefaultPort = 8060

	defaultTimeout          = 5 * time.Second
	defaultMaxResponseBytes = int64(1 << 20) // 1MB
)

// Config configures the ECP client.
type Config struct {
	// Host is the Roku device's IP address or hostname.
	Host string

	// Port overrides the ECP port. Default: 8060.
	Port int

	// BaseURL overrides Host/Port entirely, for tests and proxies.
	BaseURL string

	// Timeout bounds each ECP request. Default: 5s.
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client talks ECP to one Roku device.
type Client struct {
	baseURL  string
	client   *http.Client
	maxBytes int64
}

// NewClient creates an ECP client for one device.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		host := strings.TrimSpace(cfg.Host)
		if host == "" {
			return nil, fmt.Errorf("roku: host is required")
		}
		port := cfg.Port
		if port <= 0 {
			port = DefaultPort
		}
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("roku: invalid base URL %q", baseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   client,
		maxBytes: defaultMaxResponseBytes,
	}, nil
}

// DeviceInfo is the subset of /query/device-info the control plane uses.
type DeviceInfo struct {
	XMLName         xml.Name `xml:"device-info" json:"-"`
	ModelName       string   `xml:"model-name" json:"model_name"`
	ModelNumber     string   `xml:"model-number" json:"model_number"`
	SerialNumber    string   `xml:"serial-number" json:"serial_number"`
	DeviceName      string   `xml:"friendly-device-name" json:"device_name"`
	SoftwareVersion string   `xml:"software-version" json:"software_version"`
	PowerMode       string   `xml:"power-mode" json:"power_mode"`
	NetworkName     string   `xml:"network-name" json:"network_name"`
	IsTV            bool     `xml:"is-tv" json:"is_tv"`
}

// App is one installed channel as reported by the device.
type App struct {
	ID   string `xml:"id,attr" json:"id"`
	Name string `xml:",chardata" json:"name"`
}

type activeAppEnvelope struct {
	XMLName xml.Name `xml:"active-app"`
	App     App      `xml:"app"`
}

type appsEnvelope struct {
	XMLName xml.Name `xml:"apps"`
	Apps    []App    `xml:"app"`
}

// Launch deep-links into a channel (POST /launch/{channel_id}).
// contentID and mediaType are optional deep-link parameters; most
// streaming channels open directly to playback when both are set.
// Returns the HTTP status code the device answered with.
func (c *Client) Launch(ctx context.Context, channelID, contentID, mediaType string) (int, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return 0, fmt.Errorf("roku: channel_id is required")
	}

	endpoint := c.baseURL + "/launch/" + url.PathEscape(channelID)
	params := url.Values{}
	if contentID != "" {
		params.Set("contentId", contentID)
	}
	if mediaType != "" {
		params.Set("mediaType", mediaType)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	resp, err := c.post(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	return resp.StatusCode, nil
}

// Keypress sends one remote key press (POST /keypress/{key}).
func (c *Client) Keypress(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if !ValidKey(key) {
		return fmt.Errorf("roku: unsupported key %q", key)
	}

	resp, err := c.post(ctx, c.baseURL+"/keypress/"+url.PathEscape(key))
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("roku: keypress returned status %d", resp.StatusCode)
	}
	return nil
}

// DeviceInfo queries device details (GET /query/device-info).
func (c *Client) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	var info DeviceInfo
	if err := c.getXML(ctx, c.baseURL+"/query/device-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ActiveApp returns the channel in the foreground (GET /query/active-app).
func (c *Client) ActiveApp(ctx context.Context) (*App, error) {
	var envelope activeAppEnvelope
	if err := c.getXML(ctx, c.baseURL+"/query/active-app", &envelope); err != nil {
		return nil, err
	}
	app := envelope.App
	app.Name = strings.TrimSpace(app.Name)
	return &app, nil
}

// Apps lists installed channels (GET /query/apps).
func (c *Client) Apps(ctx context.Context) ([]App, error) {
	var envelope appsEnvelope
	if err := c.getXML(ctx, c.baseURL+"/query/apps", &envelope); err != nil {
		return nil, err
	}
	for i := range envelope.Apps {
		envelope.Apps[i].Name = strings.TrimSpace(envelope.Apps[i].Name)
	}
	return envelope.Apps, nil
}

// SearchParams carries the ECP search-browse parameters.
type SearchParams struct {
	// Keyword is the free-text search term (required).
	Keyword string

	// Type narrows results: "movie", "tv-show", "person", "channel", "game".
	Type string

	// Season, when > 0, targets a specific TV season.
	Season int

	// Launch asks the device to launch the first match.
	Launch bool

	// MatchAny relaxes matching to partial keyword matches.
	MatchAny bool

	// Provider restricts the search to one channel, e.g. "Netflix".
	Provider string
}

// Search opens the Roku search UI for a keyword (POST /search/browse).
func (c *Client) Search(ctx context.Context, params SearchParams) error {
	keyword := strings.TrimSpace(params.Keyword)
	if keyword == "" {
		return fmt.Errorf("roku: search keyword is required")
	}

	values := url.Values{}
	values.Set("keyword", keyword)
	if params.Type != "" {
		values.Set("type", params.Type)
	}
	if params.Season > 0 {
		values.Set("season", strconv.Itoa(params.Season))
	}
	if params.Launch {
		values.Set("launch", "true")
	}
	if params.MatchAny {
		values.Set("match-any", "true")
	}
	if params.Provider != "" {
		values.Set("provider", params.Provider)
	}

	resp, err := c.post(ctx, c.baseURL+"/search/browse?"+values.Encode())
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("roku: search returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("roku: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roku: request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) getXML(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("roku: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("roku: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return fmt.Errorf("roku: read response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return fmt.Errorf("roku: response too large")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("roku: query returned status %d", resp.StatusCode)
	}

	if err := xml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("roku: parse response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
	resp.Body.Close()
}
