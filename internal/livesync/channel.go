// Package livesync keeps connected viewers' copies of auctions fresh. Each
// viewer session refetches full state when the push channel signals a change
// and polls on an interval picked by a pure policy.
package livesync

import "sync"

// ChannelState is the push channel's connection state.
type ChannelState string

const (
	ChannelConnecting   ChannelState = "connecting"
	ChannelConnected    ChannelState = "connected"
	ChannelDisconnected ChannelState = "disconnected"
)

// ChannelStates lists every state, for metrics.
var ChannelStates = []string{
	string(ChannelConnecting),
	string(ChannelConnected),
	string(ChannelDisconnected),
}

var channelTransitions = map[ChannelState][]ChannelState{
	ChannelConnecting:   {ChannelConnected, ChannelDisconnected},
	ChannelConnected:    {ChannelDisconnected},
	ChannelDisconnected: {ChannelConnecting},
}

// CanTransition reports whether the state machine allows s -> to.
func (s ChannelState) CanTransition(to ChannelState) bool {
	for _, next := range channelTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Channel holds the shared push channel state. It starts connecting.
type Channel struct {
	mu      sync.RWMutex
	state   ChannelState
	lastErr error
}

func NewChannel() *Channel {
	return &Channel{state: ChannelConnecting}
}

func (c *Channel) State() ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError is the cause of the most recent disconnect.
func (c *Channel) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Transition applies to if allowed and reports whether the state changed.
func (c *Channel) Transition(to ChannelState, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CanTransition(to) {
		return false
	}
	c.state = to
	if to == ChannelDisconnected {
		c.lastErr = err
	}
	return true
}
