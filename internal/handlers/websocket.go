package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const writeTimeout = 10 * time.Second

// WSMessage is the envelope pushed to connected clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventsHandler is the WebSocket gateway onto the notification bus.
// Each connection subscribes to exactly one tenant topic; events
// published before the connection are not replayed.
type EventsHandler struct {
	bus          interfaces.EventService
	writeRate    time.Duration
	pingInterval time.Duration
	logger       arbor.ILogger
}

// NewEventsHandler creates the WebSocket gateway handler
func NewEventsHandler(bus interfaces.EventService, config *common.WebSocketConfig, logger arbor.ILogger) *EventsHandler {
	return &EventsHandler{
		bus:          bus,
		writeRate:    common.ParseDurationOr(config.WriteRate, 100*time.Millisecond),
		pingInterval: common.ParseDurationOr(config.PingInterval, 30*time.Second),
		logger:       logger,
	}
}

// HandleEvents upgrades the connection and relays bus notifications for
// the requested tenant topic.
// GET /ws/events?platform_id=&organization_id=
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	platformID, ok := RequireQuery(w, r, "platform_id")
	if !ok {
		return
	}
	organizationID, ok := RequireQuery(w, r, "organization_id")
	if !ok {
		return
	}
	topic := models.TopicKey(platformID, organizationID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	// The bus delivers on the publisher's goroutine and the ping loop
	// runs on its own; every write to the connection goes through writeMu.
	var writeMu sync.Mutex
	limiter := rate.NewLimiter(rate.Every(h.writeRate), 1)

	sub := h.bus.Subscribe(topic, func(n models.Notification) {
		// Over-rate events are dropped, not queued. The durable backlog
		// is available over the REST API.
		if !limiter.Allow() {
			h.logger.Debug().Str("topic", topic).Msg("Notification push throttled")
			return
		}

		data, err := json.Marshal(WSMessage{Type: "notification", Payload: n})
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to marshal notification message")
			return
		}

		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		writeErr := conn.WriteMessage(websocket.TextMessage, data)
		writeMu.Unlock()

		if writeErr != nil {
			h.logger.Warn().Err(writeErr).Str("topic", topic).Msg("Failed to push notification to client")
		}
	})

	h.logger.Debug().
		Str("topic", topic).
		Int("subscribers", h.bus.SubscriberCount(topic)).
		Msg("WebSocket client connected")

	done := make(chan struct{})

	// Keepalive pings until the read loop observes the close
	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		close(done)
		sub.Cancel()
		conn.Close()
		h.logger.Debug().Str("topic", topic).Msg("WebSocket client disconnected")
	}()

	// Read loop keeps the connection alive and detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("topic", topic).Msg("WebSocket error")
			}
			return
		}
	}
}
