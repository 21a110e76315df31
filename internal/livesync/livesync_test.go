package livesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/config"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeTimer struct {
	d       time.Duration
	ch      chan time.Time
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch, timers: make(chan *fakeTimer, 64)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	t := &fakeTimer{d: d, ch: make(chan time.Time, 1)}
	c.timers <- t
	return t
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	status enums.AuctionStatus
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, scope changefeed.Scope) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Snapshot{}, f.err
	}
	return Snapshot{Data: map[string]any{"scope": scope.Key(), "call": f.calls}, Status: f.status}, nil
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func auctionScope(t *testing.T) changefeed.Scope {
	t.Helper()
	scope, err := changefeed.ParseScope(changefeed.AuctionScope(uuid.New()))
	require.NoError(t, err)
	return scope
}

func nextFrame(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case frame := <-frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func nextTimer(t *testing.T, clock *fakeClock) *fakeTimer {
	t.Helper()
	select {
	case timer := <-clock.timers:
		return timer
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer")
	}
	return nil
}

func TestChannelTransitions(t *testing.T) {
	cases := []struct {
		from, to ChannelState
		ok       bool
	}{
		{ChannelConnecting, ChannelConnected, true},
		{ChannelConnecting, ChannelDisconnected, true},
		{ChannelConnected, ChannelDisconnected, true},
		{ChannelDisconnected, ChannelConnecting, true},
		{ChannelConnected, ChannelConnecting, false},
		{ChannelDisconnected, ChannelConnected, false},
		{ChannelConnected, ChannelConnected, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	ch := NewChannel()
	require.Equal(t, ChannelConnecting, ch.State())
	require.True(t, ch.Transition(ChannelConnected, nil))
	require.False(t, ch.Transition(ChannelConnecting, nil))
	cause := errors.New("socket closed")
	require.True(t, ch.Transition(ChannelDisconnected, cause))
	require.Equal(t, ChannelDisconnected, ch.State())
	require.ErrorIs(t, ch.LastError(), cause)
}

func TestPolicyNextInterval(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		name string
		c    Conditions
		want time.Duration
	}{
		{"active polling", Conditions{Channel: ChannelConnecting, Visible: true}, 15 * time.Second},
		{"active pushed", Conditions{Channel: ChannelConnected, Visible: true, Status: enums.AuctionStatusActive}, 60 * time.Second},
		{"disconnected", Conditions{Channel: ChannelDisconnected, Visible: true}, 15 * time.Second},
		{"idle", Conditions{Channel: ChannelConnected, Visible: true, Idle: 6 * time.Minute}, 60 * time.Second},
		{"terminal", Conditions{Channel: ChannelConnected, Visible: true, Status: enums.AuctionStatusCompleted}, 60 * time.Second},
		{"terminal idle", Conditions{Visible: true, Idle: 6 * time.Minute, Status: enums.AuctionStatusCancelled}, 300 * time.Second},
		{"background", Conditions{Channel: ChannelConnected, Visible: false}, 300 * time.Second},
		{"idle at threshold", Conditions{Channel: ChannelDisconnected, Visible: true, Idle: 5 * time.Minute}, 15 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, p.NextInterval(tc.c))
			require.Equal(t, p.NextInterval(tc.c), p.NextInterval(tc.c))
		})
	}
}

func TestPolicyFromConfigOverlays(t *testing.T) {
	p := PolicyFromConfig(config.SyncConfig{ActiveInterval: 5 * time.Second})
	require.Equal(t, 5*time.Second, p.Active)
	require.Equal(t, DefaultPolicy().Background, p.Background)
}

func TestSessionWaitAnchorsOnLastRefresh(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(SessionParams{Scope: auctionScope(t), Fetcher: &fakeFetcher{}, Clock: clock})
	s.lastRefresh = clock.Now()
	s.lastActivity = clock.Now()

	require.Equal(t, 15*time.Second, s.wait())
	clock.Advance(10 * time.Second)
	s.handleEvent(context.Background(), ClientEvent{Type: EventActivity})
	require.Equal(t, 5*time.Second, s.wait())
	clock.Advance(20 * time.Second)
	require.Zero(t, s.wait())
}

func TestSessionRunLifecycle(t *testing.T) {
	clock := newFakeClock()
	fetcher := &fakeFetcher{status: enums.AuctionStatusActive}
	scope := auctionScope(t)
	s := NewSession(SessionParams{Scope: scope, Fetcher: fetcher, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	frame := nextFrame(t, s.Frames())
	require.Equal(t, FrameSnapshot, frame.Type)
	require.Equal(t, TriggerInitial, frame.Trigger)
	require.Equal(t, scope.Key(), frame.Scope)
	require.Equal(t, ChannelConnecting, frame.Channel)
	require.Equal(t, int64(15000), frame.NextRefresh)
	require.Equal(t, 15*time.Second, nextTimer(t, clock).d)

	s.Notify()
	frame = nextFrame(t, s.Frames())
	require.Equal(t, TriggerPush, frame.Trigger)
	timer := nextTimer(t, clock)

	timer.ch <- clock.Now()
	frame = nextFrame(t, s.Frames())
	require.Equal(t, TriggerPoll, frame.Trigger)
	nextTimer(t, clock)

	s.SetChannel(ChannelConnected)
	frame = nextFrame(t, s.Frames())
	require.Equal(t, FrameChannel, frame.Type)
	require.Equal(t, ChannelConnected, frame.Channel)
	frame = nextFrame(t, s.Frames())
	require.Equal(t, FrameSnapshot, frame.Type)
	require.Equal(t, TriggerReconnect, frame.Trigger)
	require.Equal(t, 60*time.Second, nextTimer(t, clock).d)

	hidden, shown := false, true
	require.True(t, s.Event(ClientEvent{Type: EventVisibility, Visible: &hidden}))
	require.Equal(t, 300*time.Second, nextTimer(t, clock).d)

	require.True(t, s.Event(ClientEvent{Type: EventVisibility, Visible: &shown}))
	frame = nextFrame(t, s.Frames())
	require.Equal(t, TriggerVisibility, frame.Trigger)
	nextTimer(t, clock)

	fetcher.fail(pkgerrors.New(pkgerrors.CodeNotFound, "auction not found"))
	s.Notify()
	frame = nextFrame(t, s.Frames())
	require.Equal(t, FrameError, frame.Type)
	require.Equal(t, pkgerrors.CodeNotFound, frame.Error.Code)
	require.Equal(t, "auction not found", frame.Error.Message)
	nextTimer(t, clock)

	fetcher.fail(errors.New("connection refused"))
	s.Notify()
	frame = nextFrame(t, s.Frames())
	require.Equal(t, pkgerrors.CodeInternal, frame.Error.Code)
	require.NotContains(t, frame.Error.Message, "connection refused")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	for range s.Frames() {
	}
	require.Equal(t, 7, fetcher.calls)
}

func TestSessionRefreshesOnceAfterReconnect(t *testing.T) {
	clock := newFakeClock()
	fetcher := &fakeFetcher{status: enums.AuctionStatusActive}
	s := NewSession(SessionParams{Scope: auctionScope(t), Fetcher: fetcher, Clock: clock, Channel: ChannelConnected})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	nextFrame(t, s.Frames())
	nextTimer(t, clock)

	s.SetChannel(ChannelDisconnected)
	frame := nextFrame(t, s.Frames())
	require.Equal(t, FrameChannel, frame.Type)
	require.Equal(t, 15*time.Second, nextTimer(t, clock).d)

	s.SetChannel(ChannelConnected)
	require.Equal(t, FrameChannel, nextFrame(t, s.Frames()).Type)
	frame = nextFrame(t, s.Frames())
	require.Equal(t, TriggerReconnect, frame.Trigger)
	nextTimer(t, clock)

	// repeating the same state is a no-op
	s.SetChannel(ChannelConnected)
	s.Notify()
	require.Equal(t, TriggerPush, nextFrame(t, s.Frames()).Trigger)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	for range s.Frames() {
	}
	require.Equal(t, 3, fetcher.calls)
}

func TestSessionTerminalStatusSlowsPolling(t *testing.T) {
	clock := newFakeClock()
	fetcher := &fakeFetcher{status: enums.AuctionStatusCompleted}
	s := NewSession(SessionParams{Scope: auctionScope(t), Fetcher: fetcher, Clock: clock, Channel: ChannelDisconnected})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	nextFrame(t, s.Frames())
	require.Equal(t, 60*time.Second, nextTimer(t, clock).d)
}

func TestSessionCoalescesNotifications(t *testing.T) {
	s := NewSession(SessionParams{Scope: auctionScope(t), Fetcher: &fakeFetcher{}})
	s.Notify()
	s.Notify()
	s.Notify()
	require.Len(t, s.notify, 1)
}

func TestSessionDropsFramesWhenViewerStalls(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(SessionParams{Scope: auctionScope(t), Fetcher: &fakeFetcher{}, Clock: clock, SendBuffer: 1})
	s.emit(Frame{Type: FrameSnapshot})
	s.emit(Frame{Type: FrameSnapshot})
	require.Len(t, s.out, 1)
}

func TestHubRoutesByScope(t *testing.T) {
	hub := NewHub(nil, nil)
	auctionID := uuid.New()
	watched, err := changefeed.ParseScope(changefeed.AuctionScope(auctionID))
	require.NoError(t, err)
	other := auctionScope(t)

	a := NewSession(SessionParams{Scope: watched, Fetcher: &fakeFetcher{}})
	b := NewSession(SessionParams{Scope: other, Fetcher: &fakeFetcher{}})
	unregisterA := hub.Register(a)
	hub.Register(b)
	require.Equal(t, 2, hub.SessionCount())

	change := changefeed.Change{Table: "bids", Op: changefeed.OpInsert, AuctionID: &auctionID}
	for _, key := range change.Scopes() {
		hub.OnChange(key, change)
	}
	require.Len(t, a.notify, 1)
	require.Len(t, b.notify, 0)

	unregisterA()
	unregisterA()
	require.Equal(t, 1, hub.SessionCount())
}

func TestHubBroadcastsChannelState(t *testing.T) {
	hub := NewHub(nil, nil)
	s := NewSession(SessionParams{Scope: auctionScope(t), Fetcher: &fakeFetcher{}})
	hub.Register(s)

	hub.OnConnected()
	require.Equal(t, ChannelConnected, hub.ChannelState())
	require.Equal(t, ChannelConnected, s.latestChannel)

	hub.OnDisconnected(errors.New("eof"))
	require.Equal(t, ChannelDisconnected, s.latestChannel)

	// Reconnect without an explicit connecting callback.
	hub.OnConnected()
	require.Equal(t, ChannelConnected, hub.ChannelState())

	// Disallowed transitions are ignored.
	hub.OnConnecting()
	require.Equal(t, ChannelConnected, hub.ChannelState())
}

func TestHubRunWithDisabledFeed(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx, changefeed.Nop{}) }()

	require.Eventually(t, func() bool { return hub.ChannelState() == ChannelDisconnected }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
