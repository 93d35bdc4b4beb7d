package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"socialchat-backend/pkg/logger"
	"socialchat-backend/pkg/metrics"
)

// PresenceTracker records which users hold at least one connection
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

const presenceTimeout = 2 * time.Second

// Registry maps each user to the set of their live connections on this process.
// It is created at startup, shared by the handler and the broadcasters, and
// closed at shutdown.
type Registry struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]map[*Client]struct{}
	closed   bool
	presence PresenceTracker
}

// NewRegistry creates an empty registry. presence may be nil.
func NewRegistry(presence PresenceTracker) *Registry {
	return &Registry{
		clients:  make(map[uuid.UUID]map[*Client]struct{}),
		presence: presence,
	}
}

// Register adds a connection. It reports false if the registry is closed.
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	set, ok := r.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.clients[c.userID] = set
	}
	set[c] = struct{}{}
	first := len(set) == 1
	r.mu.Unlock()

	metrics.ChatConnectionsActive.Inc()
	if first {
		r.updatePresence(c.userID, true)
	}
	return true
}

// Unregister removes a connection and closes its send buffer. Safe to call twice.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	set, ok := r.clients[c.userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(set, c)
	last := len(set) == 0
	if last {
		delete(r.clients, c.userID)
	}
	r.mu.Unlock()

	c.closeSend()
	metrics.ChatConnectionsActive.Dec()
	if last {
		r.updatePresence(c.userID, false)
	}
}

// ConnectionCount returns the number of live connections of a user
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID])
}

// Deliver queues frame on every connection of the given users, each user
// at most once. Connections whose buffer is full are dropped. It returns the
// number of connections the frame was queued on.
func (r *Registry) Deliver(userIDs []uuid.UUID, frame []byte) int {
	var stuck []*Client
	delivered := 0

	r.mu.RLock()
	for _, userID := range dedupe(userIDs) {
		for c := range r.clients[userID] {
			if c.trySend(frame) {
				delivered++
			} else {
				stuck = append(stuck, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range stuck {
		metrics.ChatClientMessageDroppedTotal.WithLabelValues("slow_consumer").Inc()
		r.Unregister(c)
	}
	return delivered
}

// Broadcast delivers one event to every local connection of the users
func (r *Registry) Broadcast(ctx context.Context, userIDs []uuid.UUID, event string, data any) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	r.Deliver(userIDs, frame)
	return nil
}

// Close disconnects every client and refuses new registrations
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Client, 0)
	for _, set := range r.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.Unlock()

	for _, c := range all {
		r.Unregister(c)
	}
}

func (r *Registry) refreshPresence(userID uuid.UUID) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := r.presence.RefreshPresence(ctx, userID); err != nil {
		logger.Log.Debug("Failed to refresh presence", zap.Stringer("user_id", userID), zap.Error(err))
	}
}

func (r *Registry) updatePresence(userID uuid.UUID, online bool) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if online {
		err = r.presence.SetUserOnline(ctx, userID)
	} else {
		err = r.presence.SetUserOffline(ctx, userID)
	}
	if err != nil {
		logger.Log.Warn("Failed to update presence",
			zap.Stringer("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err))
	}
}

func dedupe(userIDs []uuid.UUID) []uuid.UUID {
	if len(userIDs) < 2 {
		return userIDs
	}
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	unique := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
