// Package feed streams call quality snapshots to WebSocket subscribers.
package feed

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/callquality"
	"github.com/opd-ai/callquality/limits"
	"github.com/opd-ai/callquality/metrics"
	"github.com/sirupsen/logrus"
)

const (
	writeWait = 5 * time.Second
	// DefaultBufferSize is the per-subscriber queue length
	DefaultBufferSize = 32
)

// Message types sent to subscribers.
const (
	TypeSnapshot = "snapshot"
	TypeReport   = "report"
	TypeClosed   = "closed"
)

// Envelope is the JSON message written to subscribers.
type Envelope struct {
	Type   string `json:"type"`
	CallID string `json:"callId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type subscriber struct {
	conn   *websocket.Conn
	callID string // empty subscribes to every call
	send   chan Envelope
}

// Hub fans messages out to WebSocket subscribers. Each subscriber has a
// bounded queue; messages for a full queue are dropped.
type Hub struct {
	upgrader   websocket.Upgrader
	bufferSize int

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool

	dropped atomic.Uint64
}

// NewHub creates a hub accepting same-origin, local and allowedOrigins
// connections. A bufferSize of zero uses DefaultBufferSize.
func NewHub(allowedOrigins []string, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	checker := newOriginChecker(allowedOrigins)
	return &Hub{
		upgrader:    websocket.Upgrader{CheckOrigin: checker.check},
		bufferSize:  bufferSize,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and streams messages until the client
// disconnects. The optional "call" query parameter filters by call ID.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Hub.ServeHTTP",
			"error":    err.Error(),
		}).Debug("WebSocket upgrade failed")
		return
	}

	sub := &subscriber{
		conn:   conn,
		callID: r.URL.Query().Get("call"),
		send:   make(chan Envelope, h.bufferSize),
	}
	if !h.register(sub) {
		_ = conn.Close()
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Hub.ServeHTTP",
		"remote":   r.RemoteAddr,
		"call_id":  sub.callID,
	}).Info("Feed subscriber connected")

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subscribers[sub] = struct{}{}
	return true
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
}

// readLoop discards client messages and returns when the connection fails.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.unregister(sub)
	sub.conn.SetReadLimit(limits.MaxFeedMessage)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer to the connection.
func (h *Hub) writeLoop(sub *subscriber) {
	defer func() {
		if err := sub.conn.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Hub.writeLoop",
				"error":    err.Error(),
			}).Debug("WebSocket close error")
		}
	}()

	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	_ = sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Publish queues msg for every subscriber interested in msg.CallID.
func (h *Hub) Publish(msg Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		if sub.callID != "" && msg.CallID != "" && sub.callID != msg.CallID {
			continue
		}
		select {
		case sub.send <- msg:
		default:
			if h.dropped.Add(1)%100 == 1 {
				logrus.WithFields(logrus.Fields{
					"function": "Hub.Publish",
					"dropped":  h.dropped.Load(),
				}).Warn("Slow feed subscriber, dropping messages")
			}
		}
	}
}

// PublishSnapshot sends a call snapshot.
func (h *Hub) PublishSnapshot(s callquality.Snapshot) {
	h.Publish(Envelope{Type: TypeSnapshot, CallID: s.CallID, Data: s})
}

// PublishReport sends an aggregated report to every subscriber.
func (h *Hub) PublishReport(r metrics.AggregatedReport) {
	h.Publish(Envelope{Type: TypeReport, Data: r})
}

// PublishCallClosed notifies subscribers that a call ended.
func (h *Hub) PublishCallClosed(callID string) {
	h.Publish(Envelope{Type: TypeClosed, CallID: callID})
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many messages were dropped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}
