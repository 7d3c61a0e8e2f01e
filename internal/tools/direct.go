package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/internal/roku"
	"github.com/haasonsaas/cueso/internal/search"
	"github.com/haasonsaas/cueso/pkg/models"
)

// defaultPostLaunchDelay is how long the TV gets to open a channel
// before the post-launch key press is sent.
const defaultPostLaunchDelay = 2 * time.Second

// DirectConfig configures the direct executor.
type DirectConfig struct {
	// Roku is the TV client (required).
	Roku *roku.Client

	// Pipeline serves find_content (required).
	Pipeline *search.Pipeline

	// Brave serves web_search. Nil disables the tool.
	Brave *search.BraveClient

	// PostLaunchDelay is the wait before the post-launch key press.
	// Zero uses the default; negative disables the press entirely.
	PostLaunchDelay time.Duration
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (string, error)

// DirectExecutor runs the device-side tool catalog in process: content
// search, Roku control, and web search. Bad arguments and downstream
// failures come back as IsError results so the model can react to them.
type DirectExecutor struct {
	roku            *roku.Client
	pipeline        *search.Pipeline
	brave           *search.BraveClient
	postLaunchDelay time.Duration

	defs     []models.ToolDefinition
	schemas  map[string]*jsonschema.Schema
	handlers map[string]handlerFunc

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewDirectExecutor creates the direct executor and compiles the
// argument schema for every tool it serves.
func NewDirectExecutor(cfg DirectConfig) (*DirectExecutor, error) {
	if cfg.Roku == nil {
		return nil, fmt.Errorf("tools: roku client is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("tools: search pipeline is required")
	}

	delay := cfg.PostLaunchDelay
	if delay == 0 {
		delay = defaultPostLaunchDelay
	} else if delay < 0 {
		delay = 0
	}

	d := &DirectExecutor{
		roku:            cfg.Roku,
		pipeline:        cfg.Pipeline,
		brave:           cfg.Brave,
		postLaunchDelay: delay,
		logger:          observability.NewLogger(observability.LogConfig{}),
	}

	d.handlers = map[string]handlerFunc{
		ToolFindContent:   d.findContent,
		ToolLaunchContent: d.launchContent,
		ToolSearchRoku:    d.searchRoku,
		ToolDeviceInfo:    d.deviceInfo,
		ToolActiveApp:     d.activeApp,
		ToolSendKey:       d.sendKey,
	}
	if d.brave != nil {
		d.handlers[ToolWebSearch] = d.webSearch
	}

	d.schemas = make(map[string]*jsonschema.Schema)
	for _, def := range Catalog() {
		if _, ok := d.handlers[def.Name]; !ok {
			continue
		}
		schema, err := jsonschema.CompileString(def.Name+".schema.json", string(def.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("tools: compile %s schema: %w", def.Name, err)
		}
		d.schemas[def.Name] = schema
		d.defs = append(d.defs, def)
	}

	return d, nil
}

// SetLogger replaces the executor's logger.
func (d *DirectExecutor) SetLogger(logger *observability.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics attaches a metrics recorder.
func (d *DirectExecutor) SetMetrics(metrics *observability.Metrics) {
	d.metrics = metrics
}

// Catalog returns the tools this executor serves.
func (d *DirectExecutor) Catalog() []models.ToolDefinition {
	out := make([]models.ToolDefinition, len(d.defs))
	copy(out, d.defs)
	return out
}

// Execute validates the call's arguments against the tool's schema and
// runs its handler.
func (d *DirectExecutor) Execute(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	handler, ok := d.handlers[call.Name]
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool: %s", call.Name)), nil
	}

	if err := d.validate(call.Name, call.Input); err != nil {
		d.record(call.Name, "invalid_args", 0)
		return errorResult(call.ID, fmt.Sprintf("invalid arguments for %s: %v", call.Name, err)), nil
	}

	start := time.Now()
	content, err := handler(ctx, call.Input)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		d.record(call.Name, "error", elapsed)
		d.logger.Warn(ctx, "tool execution failed", "tool", call.Name, "error", err)
		return errorResult(call.ID, err.Error()), nil
	}

	d.record(call.Name, "success", elapsed)
	return &models.ToolResult{ToolCallID: call.ID, Content: content}, nil
}

func (d *DirectExecutor) validate(name string, input json.RawMessage) error {
	schema := d.schemas[name]
	if schema == nil {
		return nil
	}
	raw := input
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(decoded)
}

func (d *DirectExecutor) record(tool, status string, seconds float64) {
	if d.metrics != nil {
		d.metrics.RecordToolExecution(tool, status, seconds)
	}
}

func errorResult(callID, content string) *models.ToolResult {
	return &models.ToolResult{ToolCallID: callID, Content: content, IsError: true}
}

type findContentArgs struct {
	Title        string `json:"title"`
	MediaType    string `json:"media_type"`
	Season       int    `json:"season"`
	Episode      int    `json:"episode"`
	EpisodeTitle string `json:"episode_title"`
}

func (d *DirectExecutor) findContent(ctx context.Context, raw json.RawMessage) (string, error) {
	var args findContentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode find_content arguments: %w", err)
	}

	result := d.pipeline.Search(ctx, search.Query{
		Title:        args.Title,
		Season:       args.Season,
		Episode:      args.Episode,
		EpisodeTitle: args.EpisodeTitle,
		MediaType:    args.MediaType,
	})
	return result.ToToolResult(), nil
}

type launchContentArgs struct {
	ChannelID int    `json:"channel_id"`
	ContentID string `json:"content_id"`
	MediaType string `json:"media_type"`
}

func (d *DirectExecutor) launchContent(ctx context.Context, raw json.RawMessage) (string, error) {
	var args launchContentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode launch_content arguments: %w", err)
	}

	channelID := strconv.Itoa(args.ChannelID)
	status, err := d.roku.Launch(ctx, channelID, args.ContentID, args.MediaType)
	if err != nil {
		return "", fmt.Errorf("launch failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("Roku returned status %d.", status)
	}

	d.logger.Info(ctx, "launched content", "channel_id", channelID, "content_id", args.ContentID)

	// Some channels open on a detail page rather than playing. Give the
	// app time to load, then press the key that starts playback.
	if d.postLaunchDelay > 0 {
		select {
		case <-time.After(d.postLaunchDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		key := postLaunchKey(args.ChannelID)
		if err := d.roku.Keypress(ctx, key); err != nil {
			d.logger.Warn(ctx, "post-launch key press failed", "key", key, "error", err)
		}
	}

	return fmt.Sprintf("Launched channel %s with content ID %s.", channelID, args.ContentID), nil
}

// postLaunchKey picks the key that starts playback once a channel has
// loaded. Netflix plays from its detail page with Play; the rest use
// Select.
func postLaunchKey(channelID int) string {
	if channelID == 12 {
		return "Play"
	}
	return "Select"
}

type webSearchArgs struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

func (d *DirectExecutor) webSearch(ctx context.Context, raw json.RawMessage) (string, error) {
	var args webSearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode web_search arguments: %w", err)
	}

	results, err := d.brave.Search(ctx, args.Query, args.Count, "")
	if err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", args.Query), nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Description)
	}
	return strings.TrimSpace(b.String()), nil
}

type searchRokuArgs struct {
	Query   string `json:"query"`
	Channel string `json:"channel"`
}

func (d *DirectExecutor) searchRoku(ctx context.Context, raw json.RawMessage) (string, error) {
	var args searchRokuArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode search_roku arguments: %w", err)
	}

	params := roku.SearchParams{Keyword: args.Query}
	if args.Channel != "" {
		params.Provider = args.Channel
		params.Launch = true
		params.MatchAny = true
	}
	if err := d.roku.Search(ctx, params); err != nil {
		return "", fmt.Errorf("roku search failed: %w", err)
	}

	if args.Channel != "" {
		return fmt.Sprintf("Searching for %q in %s on the TV.", args.Query, args.Channel), nil
	}
	return fmt.Sprintf("Opened the TV search UI for %q.", args.Query), nil
}

func (d *DirectExecutor) deviceInfo(ctx context.Context, _ json.RawMessage) (string, error) {
	info, err := d.roku.DeviceInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("device info query failed: %w", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode device info: %w", err)
	}
	return string(data), nil
}

func (d *DirectExecutor) activeApp(ctx context.Context, _ json.RawMessage) (string, error) {
	app, err := d.roku.ActiveApp(ctx)
	if err != nil {
		return "", fmt.Errorf("active app query failed: %w", err)
	}
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode active app: %w", err)
	}
	return string(data), nil
}

type sendKeyArgs struct {
	Key string `json:"key"`
}

func (d *DirectExecutor) sendKey(ctx context.Context, raw json.RawMessage) (string, error) {
	var args sendKeyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode send_key arguments: %w", err)
	}

	if err := d.roku.Keypress(ctx, args.Key); err != nil {
		return "", fmt.Errorf("key press failed: %w", err)
	}
	return fmt.Sprintf("Pressed %s.", args.Key), nil
}
