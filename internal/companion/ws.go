package companion

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/wire"
)

// liveMessage is one frame of the /ws/live stream. Exactly one field is
// set per frame.
type liveMessage struct {
	Telemetry         *wire.AccelSample       `json:"telemetry,omitempty"`
	Event             *wire.AssistEvent       `json:"event,omitempty"`
	CalibrationStatus *wire.CalibrationStatus `json:"calibrationStatus,omitempty"`
	CalibrationResult *wire.CalibrationResult `json:"calibrationResult,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local-network UI, no origin restriction
	},
}

// liveHub fans inbound wearable traffic out to websocket viewers. A slow
// viewer is dropped rather than allowed to backpressure the link.
type liveHub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func newLiveHub(logger *zap.Logger) *liveHub {
	return &liveHub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// handleLive upgrades the request and streams frames until the client
// goes away.
func (h *liveHub) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	out := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()
	h.logger.Info("live viewer connected", zap.String("remote", r.RemoteAddr))

	// Reader goroutine: we never expect client frames, but reading is the
	// only way to notice a closed connection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()

	for msg := range out {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

func (h *liveHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	out, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(out)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.logger.Info("live viewer disconnected")
	}
}

func (h *liveHub) broadcast(msg liveMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal live frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	var stale []*websocket.Conn
	for conn, out := range h.clients {
		select {
		case out <- data:
		default:
			stale = append(stale, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range stale {
		h.drop(conn)
	}
}
