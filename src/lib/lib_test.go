package lib

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/theleywin/workkie/src/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workkie.yaml")
	data := []byte(`port: "8080"
mongo:
  uri: mongodb://db:27017
  database: test
poll_interval: 5
`)
	assert.Equal(t, nil, os.WriteFile(path, data, 0o600))
	t.Setenv("DB_NAME", "from-env")
	t.Setenv("POLL_INTERVAL", "7")

	cfg, err := LoadConfig(path)
	assert.Equal(t, nil, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "from-env", cfg.Mongo.Database)
	assert.Equal(t, 7*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 60*time.Second, cfg.GetCoordinateInterval())
	assert.Equal(t, 3, cfg.AcceptRetries)
}

func TestLoadConfigNumericEnv(t *testing.T) {
	t.Setenv("COORDINATE_INTERVAL", "30")
	t.Setenv("ACCEPT_RETRIES", "5")
	t.Setenv("RECONNECTS_PER_MINUTE", "12")
	t.Setenv("MONGO_TIMEOUT", "4")
	t.Setenv("POLL_INTERVAL", "soon")

	cfg, err := LoadConfig("")
	assert.Equal(t, nil, err)
	assert.Equal(t, 30*time.Second, cfg.GetCoordinateInterval())
	assert.Equal(t, 5, cfg.AcceptRetries)
	assert.Equal(t, 12, cfg.ReconnectsPerMinute)
	assert.Equal(t, 4*time.Second, cfg.GetStoreTimeout())
	// unparsable values keep the default
	assert.Equal(t, 20*time.Second, cfg.GetPollInterval())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, nil, err)
	assert.Equal(t, DefaultConfig().Mongo.Database, cfg.Mongo.Database)
	assert.Equal(t, 20*time.Second, cfg.GetPollInterval())
}

func TestJWTRoundTrip(t *testing.T) {
	identity := models.Identity{UserID: primitive.NewObjectID(), Username: "alice"}
	token, err := GenerateJWT("secret", identity)
	assert.Equal(t, nil, err)

	verified, err := VerifyJWT("secret", token)
	assert.Equal(t, nil, err)
	assert.Equal(t, identity, verified)

	_, err = VerifyJWT("other-secret", token)
	assert.NotEqual(t, nil, err)

	_, err = VerifyJWT("secret", "not.a.token")
	assert.NotEqual(t, nil, err)
}

func TestConnectorSharesOneConnect(t *testing.T) {
	var dials atomic.Int64
	release := make(chan struct{})
	dialErr := errors.New("unreachable")
	conn := NewConnectorWithDial("test", time.Second, 60, func(ctx context.Context) (*mongo.Client, error) {
		dials.Add(1)
		<-release
		return nil, dialErr
	})

	n := 10
	errs := make(chan error, n)
	var started sync.WaitGroup
	var wg sync.WaitGroup
	for i := 0; i < n; i += 1 {
		started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			_, err := conn.Database(context.Background())
			errs <- err
		}()
	}
	started.Wait()
	// give every caller time to join the pending connect
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		// a straggler that missed the shared connect is throttled, not redialed
		assert.Equal(t, true, errors.Is(err, dialErr) || errors.Is(err, ErrReconnectThrottled))
	}
	assert.Equal(t, int64(1), dials.Load())
}

func TestConnectorThrottlesReconnects(t *testing.T) {
	var dials atomic.Int64
	conn := NewConnectorWithDial("test", time.Second, 1, func(ctx context.Context) (*mongo.Client, error) {
		dials.Add(1)
		return nil, errors.New("unreachable")
	})

	_, err := conn.Database(context.Background())
	assert.NotEqual(t, nil, err)
	_, err = conn.Database(context.Background())
	assert.Equal(t, true, errors.Is(err, ErrReconnectThrottled))
	assert.Equal(t, int64(1), dials.Load())
}

func TestConnectorCallerDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	conn := NewConnectorWithDial("test", time.Second, 60, func(ctx context.Context) (*mongo.Client, error) {
		<-release
		return nil, errors.New("unreachable")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := conn.Database(ctx)
	assert.Equal(t, true, errors.Is(err, context.DeadlineExceeded))
}

func lazyClient(t *testing.T) *mongo.Client {
	// Connect does not wait for a server; nothing here issues an operation.
	client, err := mongo.Connect(context.Background(), options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(10*time.Millisecond))
	assert.Equal(t, nil, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })
	return client
}

func TestConnectorIgnoresStaleInvalidate(t *testing.T) {
	var dials atomic.Int64
	conn := NewConnectorWithDial("test", time.Second, 1, func(ctx context.Context) (*mongo.Client, error) {
		dials.Add(1)
		return nil, errors.New("unreachable")
	})
	stale, current := lazyClient(t), lazyClient(t)

	// stale failed, was dropped and has since been replaced by current
	conn.mu.Lock()
	conn.client = current
	conn.mu.Unlock()

	conn.Invalidate(stale)
	db, err := conn.Database(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, true, db.Client() == current)
	assert.Equal(t, int64(0), dials.Load())

	conn.Invalidate(current)
	_, err = conn.Database(context.Background())
	assert.NotEqual(t, nil, err)
	assert.Equal(t, int64(1), dials.Load())
}
