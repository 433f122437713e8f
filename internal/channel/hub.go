package channel

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scholarfin/be-fund-requests/internal/logger"
)

// Conn is the subset of *websocket.Conn the hub writes to. Tests substitute
// an in-memory implementation.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Session is one subscriber connection attached to one or more channels.
type Session struct {
	conn     Conn
	sub      Subscriber
	channels []string

	// writeMu serializes frames onto the connection: websocket connections
	// allow at most one concurrent writer, and the delivery worker pool
	// publishes from several goroutines.
	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) ping(deadline time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// Touch records pong activity on the connection.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) seen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Hub tracks which sessions are attached to which channels and pushes
// envelopes to them. It implements the notify transport contract, so in a
// single-instance deployment it is the entire delivery path.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{} // channel -> sessions
	log      *logger.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Session]struct{}),
		log:      log,
	}
}

// Attach registers a connection on the given channels. Authorization has
// already happened at the handler; the hub only tracks membership.
func (h *Hub) Attach(sub Subscriber, channels []string, conn Conn) *Session {
	s := &Session{conn: conn, sub: sub, channels: channels, lastSeen: time.Now()}

	h.mu.Lock()
	for _, name := range channels {
		if _, ok := h.sessions[name]; !ok {
			h.sessions[name] = make(map[*Session]struct{})
		}
		h.sessions[name][s] = struct{}{}
	}
	h.mu.Unlock()

	h.log.Debug().
		Str("subscriber", sub.ID).
		Strs("channels", channels).
		Msg("subscriber attached")
	return s
}

// Remove detaches and closes a session.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	for _, name := range s.channels {
		if conns, ok := h.sessions[name]; ok {
			delete(conns, s)
			if len(conns) == 0 {
				delete(h.sessions, name)
			}
		}
	}
	h.mu.Unlock()

	_ = s.conn.Close()
	h.log.Debug().Str("subscriber", s.sub.ID).Msg("subscriber detached")
}

// Publish writes the payload to every session attached to the channel.
// Write failures evict the session; the channel-level delivery itself never
// fails, matching best-effort semantics.
func (h *Hub) Publish(_ context.Context, channelName string, payload []byte) error {
	h.mu.RLock()
	var failed []*Session
	for s := range h.sessions[channelName] {
		if err := s.write(websocket.TextMessage, payload); err != nil {
			h.log.Warn().Err(err).
				Str("channel", channelName).
				Str("subscriber", s.sub.ID).
				Msg("websocket write failed, evicting session")
			failed = append(failed, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range failed {
		h.Remove(s)
	}
	return nil
}

// Subscribers reports how many sessions are attached to a channel.
func (h *Hub) Subscribers(channelName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[channelName])
}

// Heartbeat pings every session on the interval and evicts connections that
// have not answered within two intervals. Blocks until ctx is cancelled.
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			var stale []*Session
			seen := make(map[*Session]struct{})
			for _, conns := range h.sessions {
				for s := range conns {
					if _, dup := seen[s]; dup {
						continue
					}
					seen[s] = struct{}{}
					if time.Since(s.seen()) > 2*interval {
						stale = append(stale, s)
						continue
					}
					_ = s.ping(time.Now().Add(time.Second))
				}
			}
			h.mu.RUnlock()

			for _, s := range stale {
				h.Remove(s)
			}
		}
	}
}
