package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errServiceRoleKeyRequired = errors.New("identity service-role key is required")

// Deleter removes identity records; the cascade coordinator's final step.
type Deleter interface {
	Configured() bool
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// Client calls the identity provider's admin API with elevated credentials.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	serviceRoleKey string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the admin client. A missing base URL or key yields a
// client whose calls fail with a dependency error, so boot never blocks on
// optional credentials.
func NewClient(cfg config.IdentityConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		serviceRoleKey: strings.TrimSpace(cfg.ServiceRoleKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Configured reports whether elevated calls can be attempted.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.serviceRoleKey != ""
}

// DeleteUser removes the identity record. A record that is already gone is
// treated as deleted.
func (c *Client) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if !c.Configured() {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errServiceRoleKeyRequired, "identity admin credentials are not configured")
	}
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	endpoint := fmt.Sprintf("%s/admin/users/%s", c.baseURL, url.PathEscape(userID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build identity delete request")
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("apikey", c.serviceRoleKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute identity delete request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "identity provider rejected service-role credentials")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "identity delete request failed")
}
