package stats

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const statusWriteTimeout = 5 * time.Second

// statusServer exposes live meters over HTTP: GET /vars returns the current
// aggregate state as JSON, GET /ws upgrades to a websocket that receives one
// snapshot per completed window.
type statusServer struct {
	r        *Receiver
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

type varsPayload struct {
	RunID            string            `json:"run_id"`
	WindowsCompleted int               `json:"windows_completed"`
	CombinedCount    uint64            `json:"combined_count"`
	Percentiles      map[string]uint64 `json:"percentiles,omitempty"`
	QueueDepth       int               `json:"queue_depth"`
	QueueCapacity    int               `json:"queue_capacity"`
}

func newStatusServer(r *Receiver, addr string) (*statusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &statusServer{
		r:    r,
		ln:   ln,
		subs: make(map[*websocket.Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /vars", s.handleVars)
	mux.HandleFunc("GET /ws", s.handleWS)
	s.srv = &http.Server{Handler: mux}
	go func() { _ = s.srv.Serve(ln) }()
	return s, nil
}

// Addr reports the bound listen address, useful when port 0 was requested.
func (s *statusServer) Addr() string { return s.ln.Addr().String() }

func (s *statusServer) handleVars(w http.ResponseWriter, req *http.Request) {
	s.r.mu.Lock()
	var combined uint64
	for _, c := range s.r.counts {
		combined += c
	}
	payload := varsPayload{
		RunID:            s.r.runID.String(),
		WindowsCompleted: s.r.windowIdx,
		CombinedCount:    combined,
		Percentiles:      s.r.last.Percentiles,
		QueueDepth:       len(s.r.queue),
		QueueCapacity:    cap(s.r.queue),
	}
	s.r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *statusServer) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.subs[conn] = struct{}{}
	s.mu.Unlock()

	// Reader pump: subscribers only listen, but the read loop is what
	// notices a peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	}()
}

func (s *statusServer) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.subs, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *statusServer) broadcast(snap Snapshot) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.subs))
	for c := range s.subs {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(statusWriteTimeout))
		if err := c.WriteJSON(snap); err != nil {
			s.drop(c)
		}
	}
}

func (s *statusServer) shutdown() {
	s.mu.Lock()
	for c := range s.subs {
		c.Close()
	}
	s.subs = map[*websocket.Conn]struct{}{}
	s.mu.Unlock()
	_ = s.srv.Close()
}
