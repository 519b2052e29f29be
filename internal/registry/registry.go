// Package registry tracks live camera WebSocket connections and indexes
// them by connection id, by capture session, and by authenticated user. It
// is the only shared mutable state in the signaling layer; every handler
// goroutine and the liveness sweeper go through it.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkinMatchProject5/camera-backend/internal/protocol"
)

var ErrConnectionNotFound = errors.New("connection not found")
var ErrDuplicateConnection = errors.New("connection id already registered")

// Sender is the transport half of a connection. WriteMessage must be safe to
// call from the registering goroutine and the registry's fan-out paths; the
// registry serializes calls per connection.
type Sender interface {
	WriteMessage(data []byte) error
	Close() error
}

type connection struct {
	id           string
	sessionID    string
	userID       string
	sender       Sender
	connectedAt  time.Time
	lastActivity time.Time

	// writeMu serializes frames to one peer so per-connection emission
	// order is strict FIFO.
	writeMu sync.Mutex
}

// Info is a read-only snapshot of one connection's metadata.
type Info struct {
	ID           string
	SessionID    string
	UserID       string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Stats summarizes registry occupancy.
type Stats struct {
	TotalConnections     int            `json:"total_connections"`
	ActiveSessions       int            `json:"active_sessions"`
	ConnectedUsers       int            `json:"connected_users"`
	ConnectionsBySession map[string]int `json:"connections_by_session"`
}

type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*connection
	sessions map[string]map[string]struct{}
	users    map[string]map[string]struct{}

	nowFn  func() time.Time
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:    make(map[string]*connection),
		sessions: make(map[string]map[string]struct{}),
		users:    make(map[string]map[string]struct{}),
		nowFn:    time.Now,
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// Register inserts a connection into the id table and both index sets.
// A duplicate id is a caller bug and fails fast.
func (r *Registry) Register(connID string, sessionID string, userID string, sender Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[connID]; exists {
		return ErrDuplicateConnection
	}

	now := r.nowFn()
	r.conns[connID] = &connection{
		id:           connID,
		sessionID:    sessionID,
		userID:       userID,
		sender:       sender,
		connectedAt:  now,
		lastActivity: now,
	}

	members, ok := r.sessions[sessionID]
	if !ok {
		members = make(map[string]struct{})
		r.sessions[sessionID] = members
	}
	members[connID] = struct{}{}

	if userID != "" {
		userMembers, ok := r.users[userID]
		if !ok {
			userMembers = make(map[string]struct{})
			r.users[userID] = userMembers
		}
		userMembers[connID] = struct{}{}
	}

	r.logger.Info().
		Str("connection_id", connID).
		Str("session_id", sessionID).
		Str("user_id", userID).
		Msg("connection registered")
	return nil
}

// Deregister removes a connection from all three structures under one lock,
// so observers never see a half-removed entry. Removing an absent id is a
// no-op.
func (r *Registry) Deregister(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	removeMember(r.sessions, conn.sessionID, connID)
	if conn.userID != "" {
		removeMember(r.users, conn.userID, connID)
	}
	r.mu.Unlock()

	r.logger.Info().Str("connection_id", connID).Msg("connection deregistered")
}

func removeMember(index map[string]map[string]struct{}, key string, connID string) {
	members, ok := index[key]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(index, key)
	}
}

// Touch updates the last-activity timestamp. Touching an absent connection
// is not an error; it may have been evicted concurrently.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connID]; ok {
		conn.lastActivity = r.nowFn()
	}
}

// Connected reports whether the connection is still registered.
func (r *Registry) Connected(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// Send encodes and transmits one envelope. A transmission failure is treated
// as a disconnect: the connection is closed and deregistered before the
// error is returned.
func (r *Registry) Send(connID string, env protocol.Envelope) error {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}

	data, err := protocol.Encode(env, r.nowFn())
	if err != nil {
		return err
	}

	conn.writeMu.Lock()
	err = conn.sender.WriteMessage(data)
	conn.writeMu.Unlock()

	if err != nil {
		r.logger.Warn().Err(err).
			Str("connection_id", connID).
			Str("message_type", env.Type).
			Msg("send failed, dropping connection")
		r.CloseAndDeregister(connID)
		return err
	}

	r.Touch(connID)
	return nil
}

// SendToSession fans an envelope out to every connection in the session,
// using a point-in-time membership snapshot. A member whose transmit fails
// is dropped by Send; the rest still receive the message. Returns the
// number of successful deliveries.
func (r *Registry) SendToSession(sessionID string, env protocol.Envelope) int {
	return r.fanOut(r.snapshotIndex(r.sessions, sessionID), env)
}

// SendToUser fans an envelope out to every connection of one user.
func (r *Registry) SendToUser(userID string, env protocol.Envelope) int {
	return r.fanOut(r.snapshotIndex(r.users, userID), env)
}

// Broadcast fans an envelope out to every live connection.
func (r *Registry) Broadcast(env protocol.Envelope) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return r.fanOut(ids, env)
}

func (r *Registry) snapshotIndex(index map[string]map[string]struct{}, key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := index[key]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) fanOut(ids []string, env protocol.Envelope) int {
	delivered := 0
	for _, id := range ids {
		if err := r.Send(id, env); err == nil {
			delivered++
		}
	}
	return delivered
}

// ListStale returns the ids of connections idle for longer than timeout.
func (r *Registry) ListStale(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.nowFn()
	stale := make([]string, 0)
	for id, conn := range r.conns {
		if now.Sub(conn.lastActivity) > timeout {
			stale = append(stale, id)
		}
	}
	return stale
}

// CloseAndDeregister attempts a graceful transport close and then removes
// the connection unconditionally. Close failures are logged only; the
// deregistration always happens.
func (r *Registry) CloseAndDeregister(connID string) {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.sender.Close(); err != nil {
		r.logger.Warn().Err(err).Str("connection_id", connID).Msg("graceful close failed")
	}
	r.Deregister(connID)
}

// Info returns a snapshot of one connection's metadata.
func (r *Registry) Info(connID string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return Info{}, false
	}
	return Info{
		ID:           conn.id,
		SessionID:    conn.sessionID,
		UserID:       conn.userID,
		ConnectedAt:  conn.connectedAt,
		LastActivity: conn.lastActivity,
	}, true
}

// SessionConnections returns the connection ids currently in a session.
func (r *Registry) SessionConnections(sessionID string) []string {
	return r.snapshotIndex(r.sessions, sessionID)
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats summarizes current occupancy across all three indexes.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bySession := make(map[string]int, len(r.sessions))
	for sessionID, members := range r.sessions {
		bySession[sessionID] = len(members)
	}
	return Stats{
		TotalConnections:     len(r.conns),
		ActiveSessions:       len(r.sessions),
		ConnectedUsers:       len(r.users),
		ConnectionsBySession: bySession,
	}
}
