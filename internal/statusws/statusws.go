// Package statusws exposes a read-only diagnostics websocket: on connect it
// pushes a single JSON snapshot holding each source's index and Cartesian
// position (gains, direct-sends and attributes are not filled in), then
// pushes one JSON patch per position, gain, direct-send or attribute change
// for as long as the socket stays open. It has no write path
// and authorises nothing beyond the listener's bind address — it is a
// monitoring aid for operators, disabled by default.
//
// Grounded on websocket.go's Upgrader configuration, wsConn's write-mutex
// wrapper, and its buffered-channel writer goroutine pattern for
// non-blocking fan-out to slow clients.
package statusws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tu-studio/osc-kreuz/internal/source"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Snapshot is the full-state payload pushed immediately after connect.
type Snapshot struct {
	Type    string          `json:"type"`
	Sources []SourceSummary `json:"sources"`
}

// SourceSummary is one source's canonical state, flattened for JSON.
type SourceSummary struct {
	Index      int                `json:"index"`
	Position   []float64          `json:"position"`
	Gain       []float64          `json:"gain"`
	DirectSend []float64          `json:"direct_send"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
}

// Patch is a single incremental change pushed after the initial snapshot.
type Patch struct {
	Type   string      `json:"type"`
	Source int         `json:"source"`
	Field  string      `json:"field"`
	Value  interface{} `json:"value"`
}

// conn wraps one upgraded connection with a write mutex and a buffered
// outbound queue so a slow diagnostics client can never stall dispatch.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	outbox  chan []byte
	done    chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{ws: ws, outbox: make(chan []byte, 64), done: make(chan struct{})}
	go c.writer()
	return c
}

func (c *conn) writer() {
	defer close(c.done)
	for payload := range c.outbox {
		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := c.ws.WriteMessage(websocket.TextMessage, payload)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// send queues payload for delivery, dropping it if the client is too slow
// to keep the outbox from filling — diagnostics pushes are best-effort,
// same failure posture as the OSC fan-out engine (spec.md §4.4).
func (c *conn) send(payload []byte) {
	select {
	case c.outbox <- payload:
	default:
		log.Printf("statusws: client too slow, dropping update")
	}
}

func (c *conn) close() {
	close(c.outbox)
	<-c.done
	c.ws.Close()
}

// Hub tracks connected diagnostics clients and fans canonical-state changes
// out to each of them.
type Hub struct {
	sources []*source.Source

	mu    sync.Mutex
	conns map[*conn]bool
}

// NewHub constructs a Hub over the given fixed source array.
func NewHub(sources []*source.Source) *Hub {
	return &Hub{sources: sources, conns: map[*conn]bool{}}
}

// ServeHTTP upgrades the request to a websocket and registers it for
// pushes until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("statusws: upgrade failed: %v", err)
		return
	}

	c := newConn(ws)
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()

	if snap, err := json.Marshal(h.snapshot()); err == nil {
		c.send(snap)
	}

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		c.close()
	}()

	// Diagnostics sockets are write-only from the server's perspective; we
	// still need to read to notice client-initiated close frames.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) snapshot() Snapshot {
	out := Snapshot{Type: "snapshot"}
	for i, s := range h.sources {
		pos, _ := s.GetPosition("xyz")
		summary := SourceSummary{Index: i + 1, Position: pos}
		out.Sources = append(out.Sources, summary)
	}
	return out
}

func (h *Hub) broadcast(p Patch) {
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.send(payload)
	}
}

// OnPositionChanged, OnGainChanged, OnDirectSendChanged and
// OnAttributeChanged satisfy receiver.Notifiable so the Hub can be
// registered directly in the fan-out receiver list as a silent observer —
// it never opens an outbound UDP endpoint, only pushes to its websocket
// clients.

func (h *Hub) OnPositionChanged(srcIdx int, src *source.Source) {
	pos, err := src.GetPosition("xyz")
	if err != nil {
		return
	}
	h.broadcast(Patch{Type: "patch", Source: srcIdx + 1, Field: "position", Value: pos})
}

func (h *Hub) OnGainChanged(srcIdx, rendererIdx int, src *source.Source) {
	value, err := src.GetGain(rendererIdx)
	if err != nil {
		return
	}
	h.broadcast(Patch{Type: "patch", Source: srcIdx + 1, Field: "gain", Value: map[string]interface{}{"renderer": rendererIdx, "value": value}})
}

func (h *Hub) OnDirectSendChanged(srcIdx, sendIdx int, src *source.Source) {
	value, err := src.GetDirectSend(sendIdx)
	if err != nil {
		return
	}
	h.broadcast(Patch{Type: "patch", Source: srcIdx + 1, Field: "direct_send", Value: map[string]interface{}{"send": sendIdx, "value": value}})
}

func (h *Hub) OnAttributeChanged(srcIdx int, attrName string, src *source.Source) {
	value := src.GetAttribute(attrName)
	h.broadcast(Patch{Type: "patch", Source: srcIdx + 1, Field: "attribute", Value: map[string]interface{}{"name": attrName, "value": value}})
}
