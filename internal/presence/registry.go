// Package presence tracks which users currently hold live connections and
// broadcasts online/offline transitions to their accepted contacts. A user
// going fully offline is debounced by a grace window so quick reconnects
// (page reloads, network blips) never flap the presence signal.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"e2ee-relay/internal/event"
	"e2ee-relay/internal/observability/metrics"
)

// ContactSource resolves the accepted contacts of a user, either side of
// the edge.
type ContactSource interface {
	AcceptedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Sink delivers an event to one live connection handle. Delivery is
// best-effort fire-and-forget.
type Sink interface {
	Deliver(handleID uuid.UUID, ev event.Event)
}

const DefaultOfflineGrace = 5 * time.Second

type Registry struct {
	mu      sync.Mutex
	handles map[uuid.UUID]map[uuid.UUID]struct{}
	timers  map[uuid.UUID]*time.Timer

	contacts ContactSource
	sink     Sink
	grace    time.Duration
}

func NewRegistry(contacts ContactSource, sink Sink, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultOfflineGrace
	}
	return &Registry{
		handles:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		timers:   make(map[uuid.UUID]*time.Timer),
		contacts: contacts,
		sink:     sink,
		grace:    grace,
	}
}

// Register adds a handle to the user's set, cancelling any pending offline
// timer. The first handle of a previously-offline user triggers an "online"
// broadcast to accepted contacts.
func (r *Registry) Register(ctx context.Context, userID, handleID uuid.UUID) {
	r.mu.Lock()
	if t, ok := r.timers[userID]; ok {
		t.Stop()
		delete(r.timers, userID)
	}
	first := len(r.handles[userID]) == 0
	if r.handles[userID] == nil {
		r.handles[userID] = make(map[uuid.UUID]struct{})
	}
	r.handles[userID][handleID] = struct{}{}
	r.mu.Unlock()

	if first {
		r.broadcastPresence(ctx, userID, true)
	}
}

// Unregister removes a handle. When the user's set empties, an offline
// broadcast is armed rather than fired: if no handle re-registers within the
// grace window, the timer re-checks liveness and only then broadcasts.
func (r *Registry) Unregister(userID, handleID uuid.UUID) {
	r.mu.Lock()
	set, ok := r.handles[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(set, handleID)
	if len(set) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.handles, userID)

	if t, ok := r.timers[userID]; ok {
		t.Stop()
	}
	r.timers[userID] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		delete(r.timers, userID)
		// The authoritative check: a re-register that raced the timer wins.
		stillOffline := len(r.handles[userID]) == 0
		r.mu.Unlock()
		if stillOffline {
			r.broadcastPresence(context.Background(), userID, false)
		}
	})
	r.mu.Unlock()
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles[userID]) > 0
}

// HandlesOf returns a snapshot of the user's live handle IDs.
func (r *Registry) HandlesOf(userID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.handles[userID]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Fanout delivers an event to every live handle of a user.
func (r *Registry) Fanout(userID uuid.UUID, ev event.Event) {
	for _, h := range r.HandlesOf(userID) {
		r.sink.Deliver(h, ev)
	}
}

// FanoutExcept delivers to every live handle of a user except one, used to
// keep an originating connection out of its own fan-out.
func (r *Registry) FanoutExcept(userID, except uuid.UUID, ev event.Event) {
	for _, h := range r.HandlesOf(userID) {
		if h == except {
			continue
		}
		r.sink.Deliver(h, ev)
	}
}

// OnlineAccepted returns the user's accepted contacts that are online right
// now, for the presence snapshot sent to a freshly connected handle.
func (r *Registry) OnlineAccepted(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := r.contacts.AcceptedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	online := ids[:0]
	for _, id := range ids {
		if r.IsOnline(id) {
			online = append(online, id)
		}
	}
	return online, nil
}

func (r *Registry) broadcastPresence(ctx context.Context, userID uuid.UUID, online bool) {
	ids, err := r.contacts.AcceptedIDs(ctx, userID)
	if err != nil {
		slog.Warn("presence: accepted contacts lookup failed", "user_id", userID, "error", err)
		return
	}

	state := "offline"
	if online {
		state = "online"
	}
	metrics.PresenceBroadcastsTotal.WithLabelValues(state).Inc()

	ev := event.Event{Type: event.TypePresenceUpdate, Data: event.PresenceUpdate{UserID: userID, Online: online}}
	for _, contactID := range ids {
		r.Fanout(contactID, ev)
	}
}
