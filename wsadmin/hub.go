// Package wsadmin serves a read-only admin WebSocket: each Broadcast
// call pushes a JSON snapshot of one channel's status fields to every
// connected client (cmd/radiod calls it for every channel on a periodic
// ticker, not per status-responder emission). There is no
// client-to-server control path here (that's mcpapi and the TLV
// command group); this is purely an observability feed for an ops
// dashboard.
//
// Grounded in ubersdr's dxcluster_websocket.go: one gorilla/websocket
// Upgrader, a per-connection write mutex keyed in a map guarded by an
// RWMutex, a ping ticker per connection, and a broadcast that locks
// each connection's own mutex rather than a single global one.
package wsadmin

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ka9q/radiod/channel"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// Hub tracks connected admin clients and broadcasts channel status.
type Hub struct {
	upgrader  websocket.Upgrader
	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex
}

// NewHub builds an empty hub, accepting connections from any origin
// (this feed is meant to sit behind the operator's own reverse proxy
// or network boundary, not to be exposed directly).
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// channelStatus is the JSON shape pushed to admin clients.
type channelStatus struct {
	SSRC          uint32  `json:"ssrc"`
	Frequency     float64 `json:"frequency_hz"`
	Mode          string  `json:"mode"`
	Preset        string  `json:"preset,omitempty"`
	Low           float64 `json:"low_hz"`
	High          float64 `json:"high_hz"`
	BasebandPower float64 `json:"baseband_power_db"`
	NoiseDensity  float64 `json:"noise_density_db"`
	PLLLocked     bool    `json:"pll_locked"`
}

func toStatus(ch *channel.Channel) channelStatus {
	return channelStatus{
		SSRC:          ch.SSRC,
		Frequency:     ch.Tuning.RFFrequency,
		Mode:          modeName(ch.Discriminant),
		Preset:        ch.PresetName,
		Low:           ch.Filter.Low,
		High:          ch.Filter.High,
		BasebandPower: ch.Estimates.BasebandPower,
		NoiseDensity:  ch.Estimates.N0,
		PLLLocked:     ch.Estimates.PLLLocked,
	}
}

func modeName(d channel.Discriminant) string {
	switch d {
	case channel.Linear:
		return "linear"
	case channel.FM:
		return "fm"
	case channel.WFM:
		return "wfm"
	case channel.Spectrum:
		return "spectrum"
	default:
		return "none"
	}
}

// ServeHTTP upgrades the connection and registers it for broadcasts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsadmin: upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.clientsMu.Unlock()
	log.Printf("wsadmin: client connected (total: %d)", count)

	go h.readLoop(conn)
}

// readLoop drains and discards client messages (this feed has no
// inbound commands) purely to detect disconnects and answer pings.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.unregister(conn)

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go h.pingLoop(conn, stop)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.clientsMu.RLock()
			writeMu, ok := h.clients[conn]
			h.clientsMu.RUnlock()
			if !ok {
				return
			}
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()
	conn.Close()
	log.Printf("wsadmin: client disconnected (remaining: %d)", count)
}

// Broadcast pushes ch's current status to every connected client.
func (h *Hub) Broadcast(ch *channel.Channel) {
	data, err := json.Marshal(toStatus(ch))
	if err != nil {
		log.Printf("wsadmin: marshal status: %v", err)
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for conn, writeMu := range h.clients {
		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, data)
		writeMu.Unlock()
		if err != nil {
			log.Printf("wsadmin: write failed, client will be reaped on next read: %v", err)
		}
	}
}
