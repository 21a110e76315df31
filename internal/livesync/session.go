package livesync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/metrics"
)

// Refresh triggers.
const (
	TriggerInitial    = "initial"
	TriggerPush       = "push"
	TriggerPoll       = "poll"
	TriggerVisibility = "visibility"
	TriggerReconnect  = "reconnect"
)

// Frame types sent to the viewer.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
	FrameChannel  = "channel"
)

// Client event types sent by the viewer.
const (
	EventVisibility = "visibility"
	EventActivity   = "activity"
)

const defaultFetchTimeout = 10 * time.Second

// Frame is one message to the viewer.
type Frame struct {
	Type        string       `json:"type"`
	Scope       string       `json:"scope"`
	Trigger     string       `json:"trigger,omitempty"`
	Data        any          `json:"data,omitempty"`
	Error       *FrameFault  `json:"error,omitempty"`
	Channel     ChannelState `json:"channel"`
	NextRefresh int64        `json:"next_refresh_ms,omitempty"`
	At          time.Time    `json:"at"`
}

// FrameFault is the payload of an error frame.
type FrameFault struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

// ClientEvent is a viewer-side signal.
type ClientEvent struct {
	Type    string `json:"type"`
	Visible *bool  `json:"visible,omitempty"`
}

type SessionParams struct {
	Scope        changefeed.Scope
	Fetcher      Fetcher
	Policy       Policy
	Clock        Clock
	Channel      ChannelState
	SendBuffer   int
	FetchTimeout time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.SyncMetrics
}

// Session serves one viewer. Run owns every piece of scheduling state; the
// other methods only hand it signals.
type Session struct {
	id           uuid.UUID
	scope        changefeed.Scope
	fetcher      Fetcher
	policy       Policy
	clock        Clock
	fetchTimeout time.Duration
	logg         *logger.Logger
	metrics      *metrics.SyncMetrics

	out     chan Frame
	notify  chan struct{}
	channel chan struct{}
	events  chan ClientEvent

	mu            sync.Mutex
	latestChannel ChannelState

	// Owned by Run.
	visible      bool
	lastActivity time.Time
	lastRefresh  time.Time
	status       enums.AuctionStatus
	channelState ChannelState
}

func NewSession(params SessionParams) *Session {
	clock := params.Clock
	if clock == nil {
		clock = RealClock()
	}
	buffer := params.SendBuffer
	if buffer <= 0 {
		buffer = 32
	}
	timeout := params.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	policy := params.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	state := params.Channel
	if state == "" {
		state = ChannelConnecting
	}
	return &Session{
		id:            uuid.New(),
		scope:         params.Scope,
		fetcher:       params.Fetcher,
		policy:        policy,
		clock:         clock,
		fetchTimeout:  timeout,
		logg:          params.Logger,
		metrics:       params.Metrics,
		out:           make(chan Frame, buffer),
		notify:        make(chan struct{}, 1),
		channel:       make(chan struct{}, 1),
		events:        make(chan ClientEvent, 16),
		latestChannel: state,
		visible:       true,
		channelState:  state,
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Scope() changefeed.Scope { return s.scope }

// Frames is closed when Run returns.
func (s *Session) Frames() <-chan Frame { return s.out }

// Notify signals a change in scope. Signals arriving before the session
// consumes the previous one collapse into a single refresh.
func (s *Session) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// SetChannel records the push channel state; only the latest value is kept.
func (s *Session) SetChannel(state ChannelState) {
	s.mu.Lock()
	s.latestChannel = state
	s.mu.Unlock()
	select {
	case s.channel <- struct{}{}:
	default:
	}
}

// Event hands a viewer event to the session. It reports false if the
// session is saturated and dropped it.
func (s *Session) Event(ev ClientEvent) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Run refreshes once, then serves signals and the poll timer until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.out)
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	s.lastActivity = s.clock.Now()
	s.refresh(ctx, TriggerInitial)
	timer := s.clock.NewTimer(s.wait())

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
			s.refresh(ctx, TriggerPoll)
		case <-s.notify:
			s.refresh(ctx, TriggerPush)
		case <-s.channel:
			s.mu.Lock()
			state := s.latestChannel
			s.mu.Unlock()
			if state == s.channelState {
				continue
			}
			s.channelState = state
			s.emit(Frame{Type: FrameChannel})
			// changes published while the channel was down never reached us
			if state == ChannelConnected {
				s.refresh(ctx, TriggerReconnect)
			}
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
		timer.Stop()
		timer = s.clock.NewTimer(s.wait())
	}
}

func (s *Session) handleEvent(ctx context.Context, ev ClientEvent) {
	now := s.clock.Now()
	switch ev.Type {
	case EventVisibility:
		if ev.Visible == nil {
			return
		}
		regained := !s.visible && *ev.Visible
		s.visible = *ev.Visible
		s.lastActivity = now
		if regained {
			s.refresh(ctx, TriggerVisibility)
		}
	case EventActivity:
		s.lastActivity = now
	}
}

// conditions snapshots the policy inputs.
func (s *Session) conditions() Conditions {
	return Conditions{
		Channel: s.channelState,
		Visible: s.visible,
		Idle:    s.clock.Now().Sub(s.lastActivity),
		Status:  s.status,
	}
}

// wait is the time left until the next poll, measured from the last refresh
// so a stream of viewer events cannot postpone polling forever.
func (s *Session) wait() time.Duration {
	interval := s.policy.NextInterval(s.conditions())
	remaining := s.lastRefresh.Add(interval).Sub(s.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Session) refresh(ctx context.Context, trigger string) {
	s.metrics.IncRefresh(trigger)
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	snapshot, err := s.fetcher.Fetch(fetchCtx, s.scope)
	cancel()
	s.lastRefresh = s.clock.Now()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.IncRefreshFailure(trigger)
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"scope": s.scope.Key(), "trigger": trigger, "session_id": s.id.String()})
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "livesync.refresh_failed")
		}
		code := pkgerrors.CodeOf(err)
		message := pkgerrors.MetadataFor(code).PublicMessage
		if typed := pkgerrors.As(err); typed != nil && code != pkgerrors.CodeInternal {
			message = typed.Message()
		}
		s.emit(Frame{Type: FrameError, Trigger: trigger, Error: &FrameFault{Code: code, Message: message}})
		return
	}

	if snapshot.Status != "" {
		s.status = snapshot.Status
	}
	s.emit(Frame{Type: FrameSnapshot, Trigger: trigger, Data: snapshot.Data})
}

// emit never blocks the session; a viewer that stops reading loses frames
// until it catches up.
func (s *Session) emit(frame Frame) {
	frame.Scope = s.scope.Key()
	frame.Channel = s.channelState
	frame.At = s.clock.Now().UTC()
	if frame.Type != FrameChannel {
		frame.NextRefresh = s.policy.NextInterval(s.conditions()).Milliseconds()
	}
	select {
	case s.out <- frame:
	default:
		if s.logg != nil {
			logCtx := s.logg.WithFields(context.Background(), map[string]any{"scope": frame.Scope, "frame": frame.Type, "session_id": s.id.String()})
			s.logg.Warn(logCtx, "livesync.frame_dropped")
		}
	}
}
