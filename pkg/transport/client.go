package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultAddress is where the signer host sends messages when nothing else is configured
	DefaultAddress = "127.0.0.1:9999"

	// MaxResponseSize is the most the client reads back from the peer
	MaxResponseSize = 1024
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// ClientConfig configures a Client. Zero values select the defaults.
type ClientConfig struct {
	Address     string
	DialTimeout time.Duration
	// IOTimeout bounds the write and read of a single exchange
	IOTimeout time.Duration
	Retry     *RetryConfig
	// RateLimit caps exchanges per second; zero disables limiting
	RateLimit float64
	RateBurst int
	Logger    *zap.Logger
}

// Client sends raw message bytes over TCP and reads back the peer's reply.
// Every exchange uses a fresh connection: write, half-close, read.
type Client struct {
	address     string
	dialer      *net.Dialer
	ioTimeout   time.Duration
	retryConfig RetryConfig
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a new transport client
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	c := &Client{
		address:     cfg.Address,
		dialer:      &net.Dialer{Timeout: cfg.DialTimeout},
		ioTimeout:   cfg.IOTimeout,
		retryConfig: DefaultRetryConfig,
		logger:      cfg.Logger,
	}
	if c.address == "" {
		c.address = DefaultAddress
	}
	if c.dialer.Timeout == 0 {
		c.dialer.Timeout = 5 * time.Second
	}
	if c.ioTimeout == 0 {
		c.ioTimeout = 10 * time.Second
	}
	if cfg.Retry != nil {
		c.retryConfig = *cfg.Retry
	}
	if c.retryConfig.MaxAttempts < 1 {
		c.retryConfig.MaxAttempts = 1
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Address returns the peer address the client sends to.
func (c *Client) Address() string {
	return c.address
}

// Send delivers message and returns the reply, retrying failed exchanges with
// exponential backoff. At most MaxResponseSize bytes of the reply are read.
func (c *Client) Send(ctx context.Context, message []byte) ([]byte, error) {
	var lastErr error
	backoff := c.retryConfig.InitialBackoff

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		resp, err := c.exchange(ctx, message)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Sugar().Debugw("Send attempt failed",
			"address", c.address,
			"attempt", attempt+1,
			"error", err,
		)

		if attempt < c.retryConfig.MaxAttempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}
	}

	return nil, fmt.Errorf("failed to send message to %s after %d attempts: %w", c.address, c.retryConfig.MaxAttempts, lastErr)
}

func (c *Client) exchange(ctx context.Context, message []byte) ([]byte, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.address, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if _, err := conn.Write(message); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return nil, fmt.Errorf("failed to close write side: %w", err)
		}
	}

	resp, err := io.ReadAll(io.LimitReader(conn, MaxResponseSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}
