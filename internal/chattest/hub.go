package chattest

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

type peer struct {
	conn *websocket.Conn

	mu       sync.Mutex
	username string
}

func (p *peer) name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.username
}

func (p *peer) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.username = name
}

// write serialises frames; gorilla allows one concurrent writer.
func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.write(data)
}

// hub tracks connected peers.
type hub struct {
	mu    sync.RWMutex
	peers map[*peer]bool
}

func newHub() *hub {
	return &hub{peers: make(map[*peer]bool)}
}

func (h *hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = true
}

func (h *hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *hub) each(fn func(p *peer)) {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		fn(p)
	}
}

func (h *hub) closeAll() {
	h.each(func(p *peer) { _ = p.conn.Close() })
}
