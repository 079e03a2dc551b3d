package lib

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var ErrReconnectThrottled = errors.New("reconnect throttled")

type DialFunc func(ctx context.Context) (*mongo.Client, error)

// Connector owns the single shared Mongo client. Concurrent callers that find
// no live client wait on one in-flight connect and share its result.
type Connector struct {
	database string
	timeout  time.Duration
	dial     DialFunc

	mu     sync.RWMutex
	client *mongo.Client

	connects singleflight.Group
	limiter  *rate.Limiter
}

func NewConnector(cfg *Config) *Connector {
	uri := cfg.Mongo.URI
	timeout := cfg.GetStoreTimeout()
	dial := func(ctx context.Context) (*mongo.Client, error) {
		opts := options.Client().
			ApplyURI(uri).
			SetServerSelectionTimeout(timeout).
			SetConnectTimeout(timeout)
		return mongo.Connect(ctx, opts)
	}
	return NewConnectorWithDial(cfg.Mongo.Database, timeout, cfg.ReconnectsPerMinute, dial)
}

func NewConnectorWithDial(database string, timeout time.Duration, reconnectsPerMinute int, dial DialFunc) *Connector {
	if reconnectsPerMinute <= 0 {
		reconnectsPerMinute = 1
	}
	return &Connector{
		database: database,
		timeout:  timeout,
		dial:     dial,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(reconnectsPerMinute)), 1),
	}
}

func (c *Connector) Timeout() time.Duration {
	return c.timeout
}

// Database returns the handle, connecting first if needed.
func (c *Connector) Database(ctx context.Context) (*mongo.Database, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client != nil {
		return client.Database(c.database), nil
	}

	result := c.connects.DoChan("connect", func() (any, error) {
		return c.connect()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-result:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*mongo.Client).Database(c.database), nil
	}
}

func (c *Connector) connect() (*mongo.Client, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	if !c.limiter.Allow() {
		return nil, ErrReconnectThrottled
	}

	// The connect outlives any single caller's context.
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	client, err := c.dial(ctx)
	if err != nil {
		glog.Warningf("[db] connect failed: %v", err)
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		glog.Warningf("[db] ping failed: %v", err)
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	glog.Infof("[db] connected to MongoDB database %s", c.database)
	return client, nil
}

// Invalidate drops failed after a connection-level failure so that the next
// caller reconnects. A failure reported on a client that was already replaced
// leaves the current one alone.
func (c *Connector) Invalidate(failed *mongo.Client) {
	if failed == nil {
		return
	}
	c.mu.Lock()
	if c.client != failed {
		c.mu.Unlock()
		glog.V(2).Infof("[db] ignoring failure on a replaced connection")
		return
	}
	c.client = nil
	c.mu.Unlock()

	glog.Infof("[db] dropping broken connection")
	go failed.Disconnect(context.Background())
}

func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}
