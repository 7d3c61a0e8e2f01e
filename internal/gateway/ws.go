package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/cueso/internal/agent"
	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/internal/sessions"
	"github.com/haasonsaas/cueso/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPongWait        = 60 * time.Second
	wsPingInterval    = 30 * time.Second
	wsWriteWait       = 10 * time.Second
	wsSendBuffer      = 64

	// closeOriginNotAllowed is sent when the Origin header fails the
	// allow-list check.
	closeOriginNotAllowed = 4003
)

// ChatBridge upgrades websocket connections and runs the chat loop:
// one client turn in, a stream of wire events out.
type ChatBridge struct {
	store          *sessions.Store
	driver         *agent.Driver
	allowedOrigins []string
	logger         *observability.Logger
	metrics        *observability.Metrics
	upgrader       websocket.Upgrader
}

// NewChatBridge creates the websocket chat bridge. An empty origin
// list admits every origin.
func NewChatBridge(store *sessions.Store, driver *agent.Driver, allowedOrigins []string) *ChatBridge {
	return &ChatBridge{
		store:          store,
		driver:         driver,
		allowedOrigins: allowedOrigins,
		logger:         observability.NewLogger(observability.LogConfig{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			// The origin policy is enforced after the upgrade so the
			// client sees a close code instead of a bare 403.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetLogger replaces the bridge's logger.
func (b *ChatBridge) SetLogger(logger *observability.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// SetMetrics attaches a metrics recorder.
func (b *ChatBridge) SetMetrics(metrics *observability.Metrics) {
	b.metrics = metrics
}

// originAllowed checks the Origin header against the allow-list.
// Requests without an Origin header (non-browser clients) pass.
func (b *ChatBridge) originAllowed(r *http.Request) bool {
	if len(b.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range b.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the connection and serves chat turns until the
// client disconnects.
func (b *ChatBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	allowed := b.originAllowed(r)

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if !allowed {
		msg := websocket.FormatCloseMessage(closeOriginNotAllowed, "origin not allowed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		conn.Close()
		b.logger.Warn(r.Context(), "websocket origin rejected", "origin", r.Header.Get("Origin"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		bridge: b,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		ctx:    ctx,
		cancel: cancel,
		id:     uuid.NewString(),
	}

	if b.metrics != nil {
		b.metrics.WSConnections.Inc()
		defer b.metrics.WSConnections.Dec()
	}

	c.run()
}

// wsConn is one client connection. Turns are handled one at a time;
// disconnect cancels the in-flight driver run through ctx.
type wsConn struct {
	bridge *ChatBridge
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	id     string
}

func (c *wsConn) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *wsConn) close() {
	c.cancel()
	_ = c.conn.Close()
}

func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var turn clientTurn
		if err := json.Unmarshal(data, &turn); err != nil {
			c.sendEvent(errorEvent{Type: wireError, Message: "invalid JSON: " + err.Error()})
			continue
		}

		if !c.handleTurn(turn) {
			return
		}
	}
}

func (c *wsConn) writeLoop() {
	// A write or ping failure is the only disconnect signal while a
	// turn is streaming, so exiting must cancel the in-flight run or
	// the session lock is never released.
	defer c.close()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// sendEvent marshals and queues one wire event.
func (c *wsConn) sendEvent(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

// handleTurn runs one user turn through the driver. Returns false when
// the connection should close.
func (c *wsConn) handleTurn(turn clientTurn) bool {
	if strings.TrimSpace(turn.Message) == "" {
		c.sendEvent(errorEvent{Type: wireError, Message: "message is required"})
		return true
	}

	session, created, err := c.bridge.store.GetOrCreate(c.ctx, turn.SessionID)
	if err != nil {
		c.sendEvent(errorEvent{Type: wireError, Message: "session unavailable: " + err.Error()})
		return false
	}
	sessionID := session.ID
	if created {
		c.bridge.logger.Info(c.ctx, "session created", "session_id", sessionID)
	}
	c.sendEvent(sessionCreatedEvent{Type: wireSessionCreated, SessionID: sessionID})

	runErr := c.bridge.store.WithLock(c.ctx, sessionID, "ws:"+c.id, func(sess *models.Session) error {
		events, err := c.bridge.driver.Run(c.ctx, sess, turn.Message)
		if err != nil {
			return err
		}
		for event := range events {
			c.forward(sessionID, event)
		}
		return nil
	})

	switch {
	case runErr == nil:
		return true
	case errors.Is(runErr, agent.ErrEmptyMessage):
		c.sendEvent(errorEvent{Type: wireError, Message: runErr.Error()})
		return true
	case errors.Is(runErr, sessions.ErrLockTimeout):
		c.sendEvent(errorEvent{Type: wireError, Message: "session is busy"})
		return false
	default:
		c.bridge.logger.Error(c.ctx, "turn failed", "session_id", sessionID, "error", runErr)
		c.sendEvent(errorEvent{Type: wireError, Message: runErr.Error()})
		return false
	}
}

// forward translates one driver event into its wire form.
func (c *wsConn) forward(sessionID string, event *agent.Event) {
	switch event.Type {
	case agent.EventContentDelta:
		c.sendEvent(contentDeltaEvent{Type: wireContentDelta, Content: event.Text, Role: "assistant"})
	case agent.EventToolCallDelta:
		call := wireToolCall{
			ID:   event.ToolCall.ID,
			Name: event.ToolCall.Name,
		}
		if event.ToolCall.HasFragment {
			fragment := event.ToolCall.InputJSON
			call.InputJSON = &fragment
		}
		c.sendEvent(toolCallDeltaEvent{Type: wireToolCallDelta, ToolCall: call})
	case agent.EventMessageComplete:
		c.sendEvent(messageCompleteEvent{
			Type:         wireMessageComplete,
			Content:      event.Complete.Content,
			ToolCalls:    nonNil(event.Complete.ToolCalls),
			FinishReason: string(event.Complete.FinishReason),
		})
	case agent.EventToolResult:
		c.sendEvent(toolResultEvent{
			Type:       wireToolResult,
			ToolName:   event.Result.ToolName,
			ToolCallID: event.Result.ToolCallID,
			Result:     event.Result.Result,
			Error:      event.Result.IsError,
		})
	case agent.EventFinal:
		c.sendEvent(finalEvent{
			Type:           wireFinal,
			Content:        event.Final.Content,
			SessionID:      sessionID,
			IterationCount: event.Final.IterationCount,
			Paused:         event.Final.Paused,
			ToolCalls:      nonNil(event.Final.ToolCalls),
		})
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
