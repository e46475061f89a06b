package kurrentdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"go.uber.org/zap"
)

// Client is a KurrentDB connection shared by the event publisher and the
// readiness probe.
type Client struct {
	mu     sync.RWMutex
	db     *esdb.Client
	target string
}

// Dial connects to KurrentDB and checks that the server answers reads within
// timeout. The caller owns the returned client.
func Dial(ctx context.Context, cfg *Config, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	settings, err := esdb.ParseConnectionString(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("invalid kurrentdb settings: %w", err)
	}

	db, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create kurrentdb client: %w", err)
	}

	c := &Client{db: db, target: cfg.Address}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.HealthCheck(dialCtx); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("connected to kurrentdb", zap.String("target", c.target))
	return c, nil
}

// DB returns the underlying EventStore client, nil once closed.
func (c *Client) DB() *esdb.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Close releases the connection. It is safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// HealthCheck reads one entry of the $streams system stream.
func (c *Client) HealthCheck(ctx context.Context) error {
	db := c.DB()
	if db == nil {
		return fmt.Errorf("kurrentdb client closed")
	}

	stream, err := db.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("kurrentdb %s unreachable: %w", c.target, err)
	}
	stream.Close()
	return nil
}
