// Package feed streams shopkeeper lifecycle events to websocket clients.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/events"
	"github.com/TomCreeper/Shopkeepers/internal/observability/metrics"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/journal"
)

const Version = "1"

// Message is one frame sent to clients. Seq increases by one per broadcast
// event, so clients can detect frames dropped for being too slow.
type Message struct {
	Type    string         `json:"type"`
	Version string         `json:"version,omitempty"`
	Seq     uint64         `json:"seq,omitempty"`
	Event   *journal.Entry `json:"event,omitempty"`
}

type client struct {
	id    uint64
	world string
	out   chan []byte
}

type Server struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	queue    int
	pongWait time.Duration

	nextID atomic.Uint64
	seq    atomic.Uint64

	mu      sync.Mutex
	closed  bool
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

func NewServer(log *zap.Logger, m *metrics.Metrics) *Server {
	return &Server{
		log:     log.Named("feed"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		queue:    64,
		pongWait: 60 * time.Second,
		clients:  map[*client]struct{}{},
	}
}

// Watch broadcasts every shopkeeper event fired on bus.
func (s *Server) Watch(bus *events.Bus) {
	bus.SubscribeAll(func(e events.Event) {
		if entry, ok := journal.EntryOf(e, time.Now()); ok {
			s.Broadcast(entry)
		}
	})
}

// SetPongWait sets how long a client may stay silent before it is dropped.
// Pings are sent at nine tenths of that interval. Call before serving.
func (s *Server) SetPongWait(d time.Duration) {
	if d > 0 {
		s.pongWait = d
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast never blocks. A client whose queue is full is disconnected.
func (s *Server) Broadcast(e journal.Entry) {
	b, err := json.Marshal(Message{Type: "event", Seq: s.seq.Add(1), Event: &e})
	if err != nil {
		s.log.Warn("could not encode feed event", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if c.world != "" && c.world != e.World {
			continue
		}
		select {
		case c.out <- b:
		default:
			s.log.Info("dropping slow feed client", zap.Uint64("client", c.id))
			s.dropLocked(c)
		}
	}
}

func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.out)
	s.metrics.FeedClientDelta(-1)
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	s.metrics.FeedClientDelta(1)
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	s.dropLocked(c)
	s.mu.Unlock()
	s.wg.Done()
}

// Handler serves the feed. The optional world query parameter limits the
// feed to one world.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			id:    s.nextID.Add(1),
			world: r.URL.Query().Get("world"),
			out:   make(chan []byte, s.queue),
		}
		if !s.register(c) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer s.unregister(c)

		if err := writeJSON(conn, Message{Type: "hello", Version: Version}); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine; also keeps the connection alive with pings.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			ping := time.NewTicker(s.pongWait * 9 / 10)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						_ = conn.Close()
						return
					}
				case b, ok := <-c.out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop; clients only send control frames.
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.pongWait))
		})
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		cancel()
		<-writerDone
	}
}

// Close disconnects all clients and waits for their handlers to return.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		s.dropLocked(c)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
