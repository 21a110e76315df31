package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

// RedisPubSub is the slice of pkg/redis.Client used by RedisFeed.
type RedisPubSub interface {
	Publish(ctx context.Context, channel string, payload any) error
	PSubscribe(ctx context.Context, patterns ...string) (*redis.PubSub, error)
}

// RedisFeed fans each change out to one channel per scope:
// "<prefix>:auction:<id>", "<prefix>:consigner:<id>", "<prefix>:all".
type RedisFeed struct {
	client        RedisPubSub
	prefix        string
	reconnectWait time.Duration
	logg          *logger.Logger
}

func NewRedisFeed(client RedisPubSub, prefix string, reconnectWait time.Duration, logg *logger.Logger) (*RedisFeed, error) {
	if client == nil {
		return nil, errors.New("redis client required for change feed")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return nil, errors.New("change feed prefix is required")
	}
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	return &RedisFeed{client: client, prefix: prefix, reconnectWait: reconnectWait, logg: logg}, nil
}

func (f *RedisFeed) channel(scope string) string {
	return f.prefix + ":" + scope
}

func (f *RedisFeed) scopeOf(channel string) (string, bool) {
	scope, ok := strings.CutPrefix(channel, f.prefix+":")
	return scope, ok && scope != ""
}

func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	payload, err := encode(change)
	if err != nil {
		return err
	}
	for _, scope := range change.Scopes() {
		if err := f.client.Publish(ctx, f.channel(scope), payload); err != nil {
			return fmt.Errorf("publish %s: %w", scope, err)
		}
	}
	return nil
}

func (f *RedisFeed) Listen(ctx context.Context, listener Listener) error {
	if listener == nil {
		return errors.New("listener is required")
	}
	for {
		err := f.listenOnce(ctx, listener)
		if ctx.Err() != nil {
			return nil
		}
		listener.OnDisconnected(err)
		if f.logg != nil {
			f.logg.Warn(f.logg.WithFields(ctx, map[string]any{"prefix": f.prefix, "error": err.Error()}), "changefeed.redis.disconnected")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.reconnectWait):
		}
	}
}

func (f *RedisFeed) listenOnce(ctx context.Context, listener Listener) error {
	listener.OnConnecting()
	ps, err := f.client.PSubscribe(ctx, f.channel("*"))
	if err != nil {
		return err
	}
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	listener.OnConnected()

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		f.dispatch(ctx, listener, msg.Channel, []byte(msg.Payload))
	}
}

func (f *RedisFeed) dispatch(ctx context.Context, listener Listener, channel string, payload []byte) {
	scope, ok := f.scopeOf(channel)
	if !ok {
		return
	}
	change, err := decode(payload)
	if err != nil {
		if f.logg != nil {
			f.logg.Warn(f.logg.WithField(ctx, "channel", channel), "changefeed.redis.bad_payload")
		}
		return
	}
	listener.OnChange(scope, change)
}

// Close is a no-op; the shared redis client is owned by the caller.
func (f *RedisFeed) Close() error { return nil }
