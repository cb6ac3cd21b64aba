// Package resilient decorates a RemoteClient with bounded retries, an
// optional circuit breaker and per-call metrics.
package resilient

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/circuit"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/retry"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Client wraps every call of an underlying RemoteClient.
type Client struct {
	next    types.RemoteClient
	retryer *retry.Retryer
	breaker *circuit.CircuitBreaker
	metrics types.MetricsCollector
	logger  *zap.Logger
}

var _ types.RemoteClient = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithBreaker guards calls with cb. Rejected calls fail fast with CIRCUIT_OPEN.
func WithBreaker(cb *circuit.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithMetrics records every remote call in m.
func WithMetrics(m types.MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New wraps next with the retry policy described by config.
func New(next types.RemoteClient, config retry.Config, opts ...Option) *Client {
	c := &Client{
		next:   next,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	onRetry := config.OnRetry
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("retrying remote call",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}
	c.retryer = retry.New(config)
	return c
}

// CreateObject implements types.RemoteClient.
func (c *Client) CreateObject(ctx context.Context, title, parentID, mimeType string) (*types.RemoteObject, error) {
	var obj *types.RemoteObject
	err := c.do(ctx, types.CallCreateObject, func(ctx context.Context) error {
		var err error
		obj, err = c.next.CreateObject(ctx, title, parentID, mimeType)
		return err
	})
	return obj, err
}

// ListChildren implements types.RemoteClient.
func (c *Client) ListChildren(ctx context.Context, parentID string, opts types.ListOptions) ([]types.RemoteObject, error) {
	var objs []types.RemoteObject
	err := c.do(ctx, types.CallListChildren, func(ctx context.Context) error {
		var err error
		objs, err = c.next.ListChildren(ctx, parentID, opts)
		return err
	})
	return objs, err
}

// FetchMetadata implements types.RemoteClient.
func (c *Client) FetchMetadata(ctx context.Context, id string) (*types.RemoteObject, error) {
	var obj *types.RemoteObject
	err := c.do(ctx, types.CallFetchMetadata, func(ctx context.Context) error {
		var err error
		obj, err = c.next.FetchMetadata(ctx, id)
		return err
	})
	return obj, err
}

// GetContent implements types.RemoteClient.
func (c *Client) GetContent(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := c.do(ctx, types.CallGetContent, func(ctx context.Context) error {
		var err error
		content, err = c.next.GetContent(ctx, id)
		return err
	})
	return content, err
}

// SetContent implements types.RemoteClient.
func (c *Client) SetContent(ctx context.Context, id string, content []byte) error {
	return c.do(ctx, types.CallSetContent, func(ctx context.Context) error {
		return c.next.SetContent(ctx, id, content)
	})
}

// Trash implements types.RemoteClient.
func (c *Client) Trash(ctx context.Context, id string) error {
	return c.do(ctx, types.CallTrash, func(ctx context.Context) error {
		return c.next.Trash(ctx, id)
	})
}

// do runs one logical remote call: retries around the breaker around the
// provider call. Each attempt is recorded.
func (c *Client) do(ctx context.Context, call string, fn func(context.Context) error) error {
	attempt := func(ctx context.Context) error {
		start := time.Now()
		var err error
		if c.breaker != nil {
			err = c.breaker.ExecuteWithContext(ctx, fn)
		} else {
			err = fn(ctx)
		}
		if c.metrics != nil {
			c.metrics.RecordRemoteCall(call, time.Since(start), err)
		}
		return err
	}

	err := c.retryer.DoWithContext(ctx, attempt)
	if err == nil {
		return nil
	}
	if errors.IsNotFound(err) {
		return err
	}
	if errors.Code(err) == errors.ErrCodeRemoteFailure {
		return err
	}
	return errors.Remote(call, err)
}
