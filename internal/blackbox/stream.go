package blackbox

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/asgard/freya/pkg/utils"
)

// Streamer broadcasts blackbox frames to WebSocket clients.
type Streamer struct {
	mu        sync.RWMutex
	clients   map[*client]bool
	broadcast chan *Frame

	upgrader websocket.Upgrader
	logger   *logrus.Entry

	framesSent    uint64
	clientsServed uint64
}

type client struct {
	conn *websocket.Conn
	send chan *Frame
	id   string
}

// NewStreamer creates a frame streamer.
func NewStreamer() *Streamer {
	return &Streamer{
		clients:   make(map[*client]bool),
		broadcast: make(chan *Frame, 100),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: utils.Component("blackbox"),
	}
}

// Record implements Sink. A full buffer drops the oldest frame rather
// than stalling the control path.
func (s *Streamer) Record(frame *Frame) {
	select {
	case s.broadcast <- frame:
	default:
		select {
		case <-s.broadcast:
		default:
		}
		s.broadcast <- frame
	}
}

// HandleWebSocket upgrades an HTTP request into a frame subscription.
func (s *Streamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("Failed to upgrade WebSocket")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan *Frame, 50),
		id:   r.RemoteAddr,
	}

	s.mu.Lock()
	s.clients[c] = true
	s.clientsServed++
	s.mu.Unlock()

	s.logger.WithField("client", c.id).Info("Blackbox client connected")

	ctx, cancel := context.WithCancel(context.Background())
	go c.writePump(ctx)
	go c.readPump(cancel, s)
}

// Run drains the broadcast channel into the connected clients until
// the context ends.
func (s *Streamer) Run(ctx context.Context) error {
	s.logger.Info("Blackbox streamer started")

	for {
		select {
		case <-ctx.Done():
			s.closeAllClients()
			return ctx.Err()

		case frame := <-s.broadcast:
			s.sendToClients(frame)
		}
	}
}

func (s *Streamer) sendToClients(frame *Frame) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- frame:
			s.framesSent++
		default:
			// Client buffer full, skip
		}
	}
}

func (s *Streamer) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
		s.logger.WithField("client", c.id).Info("Blackbox client disconnected")
	}
}

func (s *Streamer) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		c.conn.Close()
		close(c.send)
		delete(s.clients, c)
	}
}

// Stats returns client and frame counters.
func (s *Streamer) Stats() (clients int, framesSent, clientsServed uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients), s.framesSent, s.clientsServed
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(cancel context.CancelFunc, s *Streamer) {
	defer func() {
		cancel()
		s.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Error("WebSocket read error")
			}
			return
		}
	}
}
