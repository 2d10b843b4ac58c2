package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// Stream Fan-out
// ============================================================================

const (
	streamHeartbeatInterval = 30 * time.Second
	streamWriteTimeout      = 5 * time.Second
	streamClientBuffer      = 16
)

// streamClient is one subscribed connection. Frames arrive on ch in the
// order the ingestion worker produced them; done closes on hub shutdown.
type streamClient struct {
	id   string
	ch   chan []byte
	done chan struct{}
}

// StreamHub owns the set of live clients. The lock covers only membership
// mutations; broadcast iterates a snapshot, so a slow client never blocks
// the others. A client whose buffer is full is dropped on the spot.
type StreamHub struct {
	mu      sync.Mutex
	clients map[string]*streamClient
	closed  bool
}

func NewStreamHub() *StreamHub {
	return &StreamHub{clients: make(map[string]*streamClient)}
}

// Subscribe registers a new client. Returns nil after shutdown.
func (h *StreamHub) Subscribe() *streamClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &streamClient{
		id:   uuid.NewString(),
		ch:   make(chan []byte, streamClientBuffer),
		done: make(chan struct{}),
	}
	h.clients[c.id] = c
	return c
}

func (h *StreamHub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// ClientCount reports the current subscriber count for the stats endpoints.
func (h *StreamHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// remove deregisters the client and reports whether this caller took it out
// of the map. Only the caller that removed it may close done; concurrent
// broadcasts and shutdown otherwise race to a double close.
func (h *StreamHub) remove(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] != c {
		return false
	}
	delete(h.clients, c.id)
	return true
}

// Broadcast fans one frame out to every client. Clients that cannot keep up
// (full buffer) are dropped; delivery order per client follows call order.
func (h *StreamHub) Broadcast(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Marshalling stream frame failed: %v", err)
		return
	}

	h.mu.Lock()
	snapshot := make([]*streamClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	for _, c := range snapshot {
		select {
		case c.ch <- data:
		default:
			if h.remove(c) {
				close(c.done)
				log.Printf("Dropped slow stream client %s", c.id)
			}
		}
	}
}

// Shutdown sends a final close frame and releases every client.
func (h *StreamHub) Shutdown() {
	closeFrame, _ := json.Marshal(StreamCloseFrame{Type: "close"})

	// Emptying the map under the lock removes every collected client, so
	// this goroutine alone closes their done channels.
	h.mu.Lock()
	h.closed = true
	clients := make([]*streamClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*streamClient)
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.ch <- closeFrame:
		default:
		}
		close(c.done)
	}
}

// ============================================================================
// SSE handler
// ============================================================================

// HandleSSE serves the long-lived event stream. The snapshot callback
// provides the immediate first frame so new clients don't wait for the next
// ingestion tick.
func (h *StreamHub) HandleSSE(c *gin.Context, snapshot func() *WindUpdateFrame) {
	client := h.Subscribe()
	if client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	defer h.Unsubscribe(client.id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	w := c.Writer
	rc := http.NewResponseController(w)

	writeEvent := func(data []byte) bool {
		rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		w.Flush()
		return true
	}

	if frame := snapshot(); frame != nil {
		data, err := json.Marshal(frame)
		if err == nil && !writeEvent(data) {
			return
		}
	}

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case data := <-client.ch:
			if !writeEvent(data) {
				return
			}
		case <-heartbeat.C:
			rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if _, err := fmt.Fprint(w, ": hb\n\n"); err != nil {
				return
			}
			w.Flush()
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// ============================================================================
// WebSocket mirror
// ============================================================================

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWebSocket mirrors the SSE stream over a websocket for clients that
// can't hold an EventSource open.
func (h *StreamHub) HandleWebSocket(c *gin.Context, snapshot func() *WindUpdateFrame) {
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := h.Subscribe()
	if client == nil {
		return
	}
	defer h.Unsubscribe(client.id)

	// Drain inbound frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeMessage := func(data []byte) bool {
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	if frame := snapshot(); frame != nil {
		if data, err := json.Marshal(frame); err == nil && !writeMessage(data) {
			return
		}
	}

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case data := <-client.ch:
			if !writeMessage(data) {
				return
			}
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
