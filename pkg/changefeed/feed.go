// Package changefeed carries change-notify signals from writers to live
// viewers over Redis pub/sub or NATS.
package changefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/haulbid-backend/pkg/config"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

// Publisher announces committed mutations.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Listener receives routed changes and connection transitions from a feed.
type Listener interface {
	OnChange(scope string, change Change)
	OnConnecting()
	OnConnected()
	OnDisconnected(err error)
}

// Feed is both ends of the push channel.
type Feed interface {
	Publisher
	// Listen delivers changes for every scope until ctx is cancelled,
	// reconnecting on transport failures.
	Listen(ctx context.Context, listener Listener) error
	Close() error
}

// New builds the feed selected by cfg.Driver.
func New(cfg config.ChangeFeedConfig, redisClient RedisPubSub, logg *logger.Logger) (Feed, error) {
	switch cfg.NormalizedDriver() {
	case config.ChangeFeedDriverRedis:
		return NewRedisFeed(redisClient, cfg.ChannelPrefix, cfg.ReconnectWait, logg)
	case config.ChangeFeedDriverNATS:
		return NewNATSFeed(cfg.NATSURL, cfg.ChannelPrefix, cfg.ReconnectWait, logg)
	case config.ChangeFeedDriverNone:
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unsupported change feed driver %q", cfg.Driver)
}

// ErrFeedDisabled is reported to listeners of the Nop feed.
var ErrFeedDisabled = errors.New("change feed disabled")

// Nop drops every change; viewers fall back to polling.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }

func (Nop) Listen(ctx context.Context, listener Listener) error {
	if listener != nil {
		listener.OnDisconnected(ErrFeedDisabled)
	}
	<-ctx.Done()
	return nil
}

func (Nop) Close() error { return nil }

// Announce publishes change and logs rather than returns a failure. Writers
// call it after their transaction commits.
func Announce(ctx context.Context, pub Publisher, logg *logger.Logger, change Change) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, change); err != nil && logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{"table": change.Table, "op": string(change.Op), "error": err.Error()})
		logg.Warn(logCtx, "changefeed.publish_failed")
	}
}
