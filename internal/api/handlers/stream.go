package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// ProgressEvent is one rebuilt fund pushed to stream subscribers
type ProgressEvent struct {
	Type      string `json:"type"` // "fund_result"
	Ticker    string `json:"ticker"`
	Changed   bool   `json:"changed"`
	Intervals int    `json:"intervals"`
	Invalid   int    `json:"invalid"`
	Ambiguous int    `json:"ambiguous"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func newProgressEvent(r *timeline.FundResult) ProgressEvent {
	ev := ProgressEvent{
		Type:      "fund_result",
		Ticker:    r.Ticker,
		Changed:   r.Changed(),
		Intervals: r.Intervals,
		Invalid:   r.Invalid,
		Ambiguous: r.Ambiguous,
		ElapsedMs: r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// Stream fans rebuild progress out to websocket subscribers
type Stream struct {
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewStream creates a new progress stream
func NewStream(log *logger.Logger) *Stream {
	return &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Serve upgrades the connection and keeps it registered until the
// client disconnects
// GET /api/pipeline/stream
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	s.register(conn)
	s.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Stream client connected")

	go s.pingLoop(conn)

	// Drain the connection; clients never send meaningful frames, the
	// read loop only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.unregister(conn)
	s.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Stream client disconnected")
}

// Publish sends an event to every subscriber, dropping dead connections
func (s *Stream) Publish(event ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// ClientCount reports the number of connected subscribers
func (s *Stream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Stream) register(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[conn] = struct{}{}
}

func (s *Stream) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[conn]; ok {
		conn.Close()
		delete(s.clients, conn)
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		// Writes race with Publish, the registry lock doubles as the
		// per-connection write lock.
		s.mu.Lock()
		if _, alive := s.clients[conn]; !alive {
			s.mu.Unlock()
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		if err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}
