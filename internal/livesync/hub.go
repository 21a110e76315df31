package livesync

import (
	"context"
	"sync"

	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
)

// Hub fans change signals out to the sessions watching each scope and
// tracks the shared push channel state.
type Hub struct {
	channel *Channel
	logg    *logger.Logger
	metrics *metrics.SyncMetrics

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

func NewHub(logg *logger.Logger, m *metrics.SyncMetrics) *Hub {
	h := &Hub{
		channel:  NewChannel(),
		logg:     logg,
		metrics:  m,
		sessions: map[string]map[*Session]struct{}{},
	}
	h.metrics.SetChannelState(string(h.channel.State()), ChannelStates)
	return h
}

// Run subscribes the hub to feed until ctx ends.
func (h *Hub) Run(ctx context.Context, feed changefeed.Feed) error {
	return feed.Listen(ctx, h)
}

// Register adds s to its scope and returns the func that removes it.
func (h *Hub) Register(s *Session) func() {
	key := s.Scope().Key()
	h.mu.Lock()
	set, ok := h.sessions[key]
	if !ok {
		set = map[*Session]struct{}{}
		h.sessions[key] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	s.SetChannel(h.channel.State())

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.sessions[key], s)
			if len(h.sessions[key]) == 0 {
				delete(h.sessions, key)
			}
		})
	}
}

func (h *Hub) ChannelState() ChannelState { return h.channel.State() }

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.sessions {
		total += len(set)
	}
	return total
}

func (h *Hub) OnChange(scope string, _ changefeed.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[scope] {
		s.Notify()
	}
}

func (h *Hub) OnConnecting() { h.transition(ChannelConnecting, nil) }

func (h *Hub) OnConnected() {
	// A feed that reconnects on its own can skip the connecting callback.
	if h.channel.State() == ChannelDisconnected {
		h.channel.Transition(ChannelConnecting, nil)
	}
	h.transition(ChannelConnected, nil)
}

func (h *Hub) OnDisconnected(err error) { h.transition(ChannelDisconnected, err) }

func (h *Hub) transition(to ChannelState, err error) {
	if !h.channel.Transition(to, err) {
		return
	}
	h.metrics.SetChannelState(string(to), ChannelStates)
	if h.logg != nil {
		ctx := h.logg.WithField(context.Background(), "channel", string(to))
		if err != nil {
			ctx = h.logg.WithField(ctx, "error", err.Error())
		}
		h.logg.Info(ctx, "livesync.channel_state")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.sessions {
		for s := range set {
			s.SetChannel(to)
		}
	}
}
