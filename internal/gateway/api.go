package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/internal/roku"
	"github.com/haasonsaas/cueso/internal/sessions"
)

// APIHandler serves the JSON management API: session listing and
// lifecycle, plus a direct launch proxy for clients that bypass the
// conversation.
type APIHandler struct {
	store  *sessions.Store
	roku   *roku.Client
	logger *observability.Logger
}

// NewAPIHandler creates the management API handler.
func NewAPIHandler(store *sessions.Store, rokuClient *roku.Client) *APIHandler {
	return &APIHandler{
		store:  store,
		roku:   rokuClient,
		logger: observability.NewLogger(observability.LogConfig{}),
	}
}

// SetLogger replaces the handler's logger.
func (h *APIHandler) SetLogger(logger *observability.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Register mounts the API routes on the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", h.sessionsIndex)
	mux.HandleFunc("/api/sessions/", h.session)
	mux.HandleFunc("/api/roku/launch", h.launch)
	mux.HandleFunc("/healthz", h.health)
}

type sessionListResponse struct {
	Sessions []sessions.SessionInfo `json:"sessions"`
	Count    int                    `json:"count"`
}

func (h *APIHandler) sessionsIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := h.store.List(r.Context())
	if list == nil {
		list = []sessions.SessionInfo{}
	}
	h.jsonResponse(w, http.StatusOK, sessionListResponse{Sessions: list, Count: len(list)})
}

// session routes /api/sessions/{id} and /api/sessions/{id}/reset.
func (h *APIHandler) session(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")
	sessionID := parts[0]
	if sessionID == "" {
		h.jsonError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.deleteSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "reset" && r.Method == http.MethodPost:
		h.resetSession(w, r, sessionID)
	default:
		h.jsonError(w, "Not found", http.StatusNotFound)
	}
}

func (h *APIHandler) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.store.Delete(r.Context(), sessionID); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			h.jsonError(w, "Session not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"deleted": sessionID})
}

func (h *APIHandler) resetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.store.Reset(r.Context(), sessionID); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			h.jsonError(w, "Session not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "Failed to reset session", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"reset": sessionID})
}

type launchRequest struct {
	ChannelID int    `json:"channel_id"`
	ContentID string `json:"content_id"`
	MediaType string `json:"media_type,omitempty"`
}

type launchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// launch deep-links straight into a channel, bypassing the model.
func (h *APIHandler) launch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.roku == nil {
		h.jsonError(w, "Roku client not configured", http.StatusServiceUnavailable)
		return
	}

	var req launchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ChannelID <= 0 {
		h.jsonError(w, "channel_id is required", http.StatusBadRequest)
		return
	}

	channelID := strconv.Itoa(req.ChannelID)
	status, err := h.roku.Launch(r.Context(), channelID, req.ContentID, req.MediaType)
	if err != nil {
		h.logger.Error(r.Context(), "direct launch failed", "channel_id", channelID, "error", err)
		h.jsonResponse(w, http.StatusBadGateway, launchResponse{Success: false, Message: err.Error()})
		return
	}
	if status < 200 || status >= 300 {
		h.jsonResponse(w, http.StatusOK, launchResponse{
			Success: false,
			Message: fmt.Sprintf("Roku returned status %d.", status),
		})
		return
	}

	h.jsonResponse(w, http.StatusOK, launchResponse{
		Success: true,
		Message: fmt.Sprintf("Launched channel %s with content ID %s.", channelID, req.ContentID),
	})
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) jsonResponse(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *APIHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
