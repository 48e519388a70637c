package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler manages dashboard connections and pushes event-driven
// updates so clients see sync progress without polling.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	return h
}

// Message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SyncStatusUpdate reports a sync lifecycle transition for one integration
type SyncStatusUpdate struct {
	IntegrationID string    `json:"integrationId"`
	SourceType    string    `json:"sourceType,omitempty"`
	Status        string    `json:"status"` // started, completed, failed
	Trigger       string    `json:"trigger,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	SnapshotID    string    `json:"snapshotId,omitempty"`
	NoActivity    bool      `json:"noActivity,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorKind     string    `json:"errorKind,omitempty"`
	Retryable     bool      `json:"retryable,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SweepSummaryUpdate reports the outcome totals of a completed sweep
type SweepSummaryUpdate struct {
	JobID      string    `json:"jobId"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	DurationMs int       `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// IntegrationChangeUpdate reports integration CRUD so dashboards can
// refresh their integration lists
type IntegrationChangeUpdate struct {
	IntegrationID string    `json:"integrationId"`
	Action        string    `json:"action"` // created, updated, deleted
	SourceType    string    `json:"sourceType,omitempty"`
	TeamID        string    `json:"teamId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// TeamChangeUpdate reports team CRUD
type TeamChangeUpdate struct {
	TeamID    string    `json:"teamId"`
	Action    string    `json:"action"` // created, updated, deactivated
	Timestamp time.Time `json:"timestamp"`
}

func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", len(h.clients))

	// Send the instance ID so reconnecting clients can detect a restart
	// and drop any state they cached from the previous process
	h.sendConnected(conn)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendConnected sends the hello message to a single client
func (h *WebSocketHandler) sendConnected(conn *websocket.Conn) {
	msg := WSMessage{
		Type: "connected",
		Payload: map[string]interface{}{
			"serverInstanceId": h.serverInstanceID,
			"timestamp":        time.Now().Format(time.RFC3339),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal connected message")
		return
	}

	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send connected message to client")
	}
}

// BroadcastSyncStatus sends a sync lifecycle update to all connected clients
func (h *WebSocketHandler) BroadcastSyncStatus(update SyncStatusUpdate) {
	h.broadcast("sync_status", update)
}

// BroadcastSweepSummary sends sweep outcome totals to all connected clients
func (h *WebSocketHandler) BroadcastSweepSummary(update SweepSummaryUpdate) {
	h.broadcast("sweep_summary", update)
}

// BroadcastIntegrationChange sends an integration CRUD notification to all connected clients
func (h *WebSocketHandler) BroadcastIntegrationChange(update IntegrationChangeUpdate) {
	h.broadcast("integration_change", update)
}

// BroadcastTeamChange sends a team CRUD notification to all connected clients
func (h *WebSocketHandler) BroadcastTeamChange(update TeamChangeUpdate) {
	h.broadcast("team_change", update)
}

func (h *WebSocketHandler) broadcast(messageType string, payload interface{}) {
	msg := WSMessage{
		Type:    messageType,
		Payload: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("message_type", messageType).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("message_type", messageType).Msg("Failed to send message to client")
		}
	}
}

func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func getBool(m map[string]interface{}, key string) bool {
	if val, ok := m[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// getTimestamp attempts to parse a timestamp from the payload, falls back to time.Now()
func getTimestamp(payload map[string]interface{}) time.Time {
	if tsStr := getString(payload, "timestamp"); tsStr != "" {
		if ts, err := time.Parse(time.RFC3339, tsStr); err == nil {
			return ts
		}
	}
	return time.Now()
}
