// Package tools implements the device-side tool surface: the catalog of
// tools offered to the model, JSON Schema validation of their arguments,
// and the direct executor that carries them out against the TV and the
// content search pipeline. A Registry composes the direct executor with
// remote executors into one ordered tool list.
package tools

import (
	"encoding/json"

	"github.com/haasonsaas/cueso/pkg/models"
)

// Tool names served by the direct executor.
const (
	ToolFindContent   = "find_content"
	ToolLaunchContent = "launch_content"
	ToolWebSearch     = "web_search"
	ToolSearchRoku    = "search_roku"
	ToolDeviceInfo    = "get_device_info"
	ToolActiveApp     = "get_active_app"
	ToolSendKey       = "send_key"
)

const findContentSchema = `{
	"type": "object",
	"properties": {
		"title": {
			"type": "string",
			"description": "Title of the movie or show to find"
		},
		"media_type": {
			"type": "string",
			"enum": ["movie", "series", "episode", "season"],
			"description": "Kind of content being requested"
		},
		"season": {
			"type": "integer",
			"minimum": 1,
			"description": "Season number, for episode requests"
		},
		"episode": {
			"type": "integer",
			"minimum": 1,
			"description": "Episode number, for episode requests"
		},
		"episode_title": {
			"type": "string",
			"description": "Episode title, when known"
		}
	},
	"required": ["title"],
	"additionalProperties": false
}`

const launchContentSchema = `{
	"type": "object",
	"properties": {
		"channel_id": {
			"type": "integer",
			"minimum": 1,
			"description": "Roku channel ID, e.g. 12 for Netflix"
		},
		"content_id": {
			"type": "string",
			"minLength": 1,
			"description": "Service content ID from a find_content match"
		},
		"media_type": {
			"type": "string",
			"description": "Deep link mediaType, e.g. movie or series"
		}
	},
	"required": ["channel_id", "content_id"],
	"additionalProperties": false
}`

const webSearchSchema = `{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"minLength": 1,
			"description": "Search query"
		},
		"count": {
			"type": "integer",
			"minimum": 1,
			"maximum": 20,
			"description": "Number of results to return (default 10)"
		}
	},
	"required": ["query"],
	"additionalProperties": false
}`

const searchRokuSchema = `{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"minLength": 1,
			"description": "Title or keyword to search for on the TV"
		},
		"channel": {
			"type": "string",
			"description": "Channel name to search within, e.g. Netflix"
		}
	},
	"required": ["query"],
	"additionalProperties": false
}`

const emptySchema = `{
	"type": "object",
	"properties": {},
	"additionalProperties": false
}`

const sendKeySchema = `{
	"type": "object",
	"properties": {
		"key": {
			"type": "string",
			"description": "Remote key name, e.g. Home, Play, Select, VolumeUp"
		}
	},
	"required": ["key"],
	"additionalProperties": false
}`

// catalog is the direct executor's tool list, in the order tools are
// offered to the model.
var catalog = []models.ToolDefinition{
	{
		Name: ToolFindContent,
		Description: "Search streaming services for a movie or show and return " +
			"deep-link matches (service, channel ID, content ID). Present the " +
			"matches to the user and confirm before launching.",
		InputSchema: json.RawMessage(findContentSchema),
		PauseAfter:  true,
	},
	{
		Name: ToolLaunchContent,
		Description: "Launch content on the TV using a channel ID and content ID " +
			"from a find_content match.",
		InputSchema: json.RawMessage(launchContentSchema),
	},
	{
		Name:        ToolWebSearch,
		Description: "General web search for questions not about playing content.",
		InputSchema: json.RawMessage(webSearchSchema),
	},
	{
		Name: ToolSearchRoku,
		Description: "Open the TV's own search UI for a title. Fallback when no " +
			"streaming deep link is found.",
		InputSchema: json.RawMessage(searchRokuSchema),
	},
	{
		Name:        ToolDeviceInfo,
		Description: "Get TV device details: model, name, power state.",
		InputSchema: json.RawMessage(emptySchema),
	},
	{
		Name:        ToolActiveApp,
		Description: "Get the app currently in the foreground on the TV.",
		InputSchema: json.RawMessage(emptySchema),
	},
	{
		Name:        ToolSendKey,
		Description: "Press a remote control key on the TV.",
		InputSchema: json.RawMessage(sendKeySchema),
	},
}

// Catalog returns a copy of the direct tool definitions.
func Catalog() []models.ToolDefinition {
	out := make([]models.ToolDefinition, len(catalog))
	copy(out, catalog)
	return out
}
