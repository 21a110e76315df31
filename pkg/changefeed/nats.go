package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

// natsConn is the subset of *nats.Conn used by NATSFeed.
type natsConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	IsConnected() bool
	Close()
}

// NATSFeed maps scopes onto subjects: "<root>.auction.<id>", "<root>.all".
type NATSFeed struct {
	conn natsConn
	root string
	logg *logger.Logger

	mu       sync.RWMutex
	listener Listener
}

func NewNATSFeed(url, prefix string, reconnectWait time.Duration, logg *logger.Logger) (*NATSFeed, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}
	feed := &NATSFeed{root: subjectRoot(prefix), logg: logg}
	if feed.root == "" {
		return nil, errors.New("change feed prefix is required")
	}
	conn, err := nats.Connect(url,
		nats.Name("haulbid-changefeed"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) { feed.disconnected(err) }),
		nats.ReconnectHandler(func(*nats.Conn) { feed.connected() }),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	feed.conn = conn
	return feed, nil
}

func subjectRoot(prefix string) string {
	root := strings.NewReplacer(":", ".", " ", "").Replace(strings.TrimSpace(prefix))
	return strings.Trim(root, ".")
}

func (f *NATSFeed) subject(scope string) string {
	return f.root + "." + strings.ReplaceAll(scope, ":", ".")
}

func (f *NATSFeed) scopeOf(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, f.root+".")
	if !ok || rest == "" {
		return "", false
	}
	return strings.Replace(rest, ".", ":", 1), true
}

func (f *NATSFeed) Publish(_ context.Context, change Change) error {
	payload, err := encode(change)
	if err != nil {
		return err
	}
	for _, scope := range change.Scopes() {
		if err := f.conn.Publish(f.subject(scope), payload); err != nil {
			return fmt.Errorf("publish %s: %w", scope, err)
		}
	}
	return nil
}

func (f *NATSFeed) Listen(ctx context.Context, listener Listener) error {
	if listener == nil {
		return errors.New("listener is required")
	}
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.listener = nil
		f.mu.Unlock()
	}()

	listener.OnConnecting()
	sub, err := f.conn.Subscribe(f.root+".>", func(msg *nats.Msg) {
		f.dispatch(ctx, msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	if f.conn.IsConnected() {
		listener.OnConnected()
	}
	<-ctx.Done()
	return nil
}

func (f *NATSFeed) current() Listener {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listener
}

func (f *NATSFeed) dispatch(ctx context.Context, subject string, data []byte) {
	listener := f.current()
	if listener == nil {
		return
	}
	scope, ok := f.scopeOf(subject)
	if !ok {
		return
	}
	change, err := decode(data)
	if err != nil {
		if f.logg != nil {
			f.logg.Warn(f.logg.WithField(ctx, "subject", subject), "changefeed.nats.bad_payload")
		}
		return
	}
	listener.OnChange(scope, change)
}

func (f *NATSFeed) connected() {
	if listener := f.current(); listener != nil {
		listener.OnConnected()
	}
}

// disconnected fires when the connection drops; the client reconnects on its
// own, so the listener moves straight back to connecting.
func (f *NATSFeed) disconnected(err error) {
	if listener := f.current(); listener != nil {
		listener.OnDisconnected(err)
		listener.OnConnecting()
	}
}

func (f *NATSFeed) Close() error {
	if f.conn != nil {
		f.conn.Close()
	}
	return nil
}
