package connections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-playground/assert/v2"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/repository"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// hookStore lets a test run code before selected store calls.
type hookStore struct {
	store.Store
	mu       sync.Mutex
	onFind   func(filter bson.M) error
	onUpdate func(filter bson.M, update bson.M) error
}

func (s *hookStore) FindOne(ctx context.Context, collection string, filter bson.M) (bson.Raw, error) {
	s.mu.Lock()
	hook := s.onFind
	s.mu.Unlock()
	if hook != nil {
		if err := hook(filter); err != nil {
			return nil, err
		}
	}
	return s.Store.FindOne(ctx, collection, filter)
}

func (s *hookStore) Update(ctx context.Context, collection string, filter bson.M, update bson.M) (store.UpdateResult, error) {
	s.mu.Lock()
	hook := s.onUpdate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(filter, update); err != nil {
			return store.UpdateResult{}, err
		}
	}
	return s.Store.Update(ctx, collection, filter, update)
}

type fixture struct {
	store  *hookStore
	users  *repository.UserRepository
	engine *Engine
}

func newFixture(t *testing.T, retries int) *fixture {
	s := &hookStore{Store: store.NewMemoryStore()}
	users := repository.NewUserRepository(s)
	assert.Equal(t, nil, users.EnsureIndexes(context.Background()))
	return &fixture{
		store:  s,
		users:  users,
		engine: NewEngine(users, retries, time.Millisecond),
	}
}

func (f *fixture) createUser(t *testing.T, name string) (*models.User, models.Identity) {
	user := &models.User{
		Username: name,
		Password: gofakeit.Password(true, true, true, false, false, 10),
		Email:    gofakeit.Email(),
	}
	assert.Equal(t, nil, f.users.Create(context.Background(), user))
	return user, models.Identity{UserID: user.Id, Username: user.Username}
}

func (f *fixture) reload(t *testing.T, id primitive.ObjectID) *models.User {
	user, err := f.users.GetByID(context.Background(), id)
	assert.Equal(t, nil, err)
	return user
}

func TestAcceptScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultAcceptRetries)
	alice, aliceID := f.createUser(t, "alice")
	bob, bobID := f.createUser(t, "bob")

	req, err := f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, "alice", req.FromUsername)
	assert.Equal(t, "bob", req.ToUsername)

	pending, err := f.engine.ListPending(ctx, bob.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(pending))
	assert.Equal(t, alice.Id, pending[0].FromUser)
	assert.Equal(t, models.RequestStatusPending, pending[0].Status)

	res, err := f.engine.Resolve(ctx, bobID, pending[0].Id, models.DecisionAccept)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, res.Suppress)
	assert.Equal(t, req.Id, res.Request.Id)

	assert.Equal(t, []models.Connection{{Username: "bob"}}, f.reload(t, alice.Id).Connections)
	assert.Equal(t, []models.Connection{{Username: "alice"}}, f.reload(t, bob.Id).Connections)
	assert.Equal(t, 0, len(f.reload(t, bob.Id).ConnectionRequests))

	_, err = f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, ErrAlreadyConnected, err)

	// a second accept of the same request finds nothing
	_, err = f.engine.Resolve(ctx, bobID, req.Id, models.DecisionAccept)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, 1, len(f.reload(t, alice.Id).Connections))
	assert.Equal(t, 1, len(f.reload(t, bob.Id).Connections))

	state, err := f.engine.Status(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, models.ConnectionStateConnected, state)
}

func TestProposeRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultAcceptRetries)
	alice, aliceID := f.createUser(t, "alice")
	bob, bobID := f.createUser(t, "bob")

	_, err := f.engine.Propose(ctx, aliceID, alice.Id)
	assert.Equal(t, ErrSelfRequest, err)

	_, err = f.engine.Propose(ctx, models.Identity{}, bob.Id)
	assert.Equal(t, ErrNotAuthenticated, err)

	_, err = f.engine.Propose(ctx, aliceID, primitive.NewObjectID())
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	_, err = f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)
	_, err = f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, ErrDuplicatePending, err)
	assert.Equal(t, 1, len(f.reload(t, bob.Id).ConnectionRequests))

	// the reverse direction is a different ordered pair
	_, err = f.engine.Propose(ctx, bobID, alice.Id)
	assert.Equal(t, nil, err)

	state, err := f.engine.Status(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, models.ConnectionStatePending, state)
}

func TestProposeKeepsExistingRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultAcceptRetries)
	target, targetID := f.createUser(t, "target")

	for i := 0; i < 3; i += 1 {
		_, id := f.createUser(t, fmt.Sprintf("user%d", i))
		_, err := f.engine.Propose(ctx, id, target.Id)
		assert.Equal(t, nil, err)
	}
	pending, err := f.engine.ListPending(ctx, target.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, len(pending))
	assert.Equal(t, "user0", pending[0].FromUsername)

	state, err := f.engine.Status(ctx, targetID, pending[1].FromUser)
	assert.Equal(t, nil, err)
	assert.Equal(t, models.ConnectionStateReceived, state)
}

func TestRejectAndIgnore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultAcceptRetries)
	alice, aliceID := f.createUser(t, "alice")
	bob, bobID := f.createUser(t, "bob")
	_, carolID := f.createUser(t, "carol")

	fromAlice, err := f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)
	fromCarol, err := f.engine.Propose(ctx, carolID, bob.Id)
	assert.Equal(t, nil, err)

	res, err := f.engine.Resolve(ctx, bobID, fromAlice.Id, models.DecisionReject)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, res.Suppress)

	res, err = f.engine.Resolve(ctx, bobID, fromCarol.Id, models.DecisionIgnore)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, res.Suppress)

	bobNow := f.reload(t, bob.Id)
	assert.Equal(t, 0, len(bobNow.ConnectionRequests))
	assert.Equal(t, 0, len(bobNow.Connections))
	assert.Equal(t, 0, len(f.reload(t, alice.Id).Connections))

	_, err = f.engine.Resolve(ctx, bobID, fromAlice.Id, models.DecisionReject)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	// rejected requesters may ask again
	_, err = f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)

	_, err = f.engine.Resolve(ctx, aliceID, fromAlice.Id, models.DecisionAccept)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
}

func TestConcurrentProposeCreatesOneRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultAcceptRetries)
	_, aliceID := f.createUser(t, "alice")
	bob, _ := f.createUser(t, "bob")

	n := 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i += 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Propose(ctx, aliceID, bob.Id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			created += 1
		case errors.Is(err, ErrDuplicatePending):
			duplicates += 1
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, duplicates)
	assert.Equal(t, 1, len(f.reload(t, bob.Id).ConnectionRequests))
}

func TestProposeAndCoordinateWriteInterleaved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultAcceptRetries)
	alice, _ := f.createUser(t, "alice")
	_, carolID := f.createUser(t, "carol")

	// the coordinate write lands after propose has read alice's record and
	// before it writes the request
	var once sync.Once
	f.store.onFind = func(filter bson.M) error {
		if filter["_id"] != alice.Id {
			return nil
		}
		var err error
		once.Do(func() {
			err = f.users.SetCoordinates(ctx, alice.Id, 48.85, 2.35)
		})
		return err
	}

	_, err := f.engine.Propose(ctx, carolID, alice.Id)
	assert.Equal(t, nil, err)

	aliceNow := f.reload(t, alice.Id)
	assert.Equal(t, 1, len(aliceNow.ConnectionRequests))
	assert.Equal(t, true, aliceNow.HasLocation())
	assert.Equal(t, 48.85, *aliceNow.Latitude)
	assert.Equal(t, 2.35, *aliceNow.Longitude)
}

func failRequesterSide(f *fixture, requesterID primitive.ObjectID, failures *int) {
	f.store.onUpdate = func(filter bson.M, update bson.M) error {
		if filter["_id"] != requesterID || update["$addToSet"] == nil {
			return nil
		}
		if *failures == 0 {
			return nil
		}
		*failures -= 1
		return fmt.Errorf("update users: %w", store.ErrNotConnected)
	}
}

func TestAcceptRetriesRequesterSide(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	alice, aliceID := f.createUser(t, "alice")
	bob, bobID := f.createUser(t, "bob")

	req, err := f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)

	failures := 2
	failRequesterSide(f, alice.Id, &failures)

	_, err = f.engine.Resolve(ctx, bobID, req.Id, models.DecisionAccept)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, failures)
	assert.Equal(t, []models.Connection{{Username: "bob"}}, f.reload(t, alice.Id).Connections)
	assert.Equal(t, []models.Connection{{Username: "alice"}}, f.reload(t, bob.Id).Connections)
}

func TestAcceptCompensatesWhenRequesterSideFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	alice, aliceID := f.createUser(t, "alice")
	bob, bobID := f.createUser(t, "bob")

	req, err := f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)

	failures := 3
	failRequesterSide(f, alice.Id, &failures)

	_, err = f.engine.Resolve(ctx, bobID, req.Id, models.DecisionAccept)
	assert.Equal(t, true, errors.Is(err, ErrPartialAccept))
	assert.Equal(t, true, errors.Is(err, store.ErrNotConnected))

	var partial *PartialAcceptError
	assert.Equal(t, true, errors.As(err, &partial))
	assert.Equal(t, true, partial.Compensated)
	assert.Equal(t, req.Id, partial.RequestID)

	// neither side is connected and the request is pending again
	bobNow := f.reload(t, bob.Id)
	assert.Equal(t, 0, len(bobNow.Connections))
	assert.Equal(t, 1, len(bobNow.PendingRequests()))
	assert.Equal(t, 0, len(f.reload(t, alice.Id).Connections))

	// the store recovers and the full accept goes through
	_, err = f.engine.Resolve(ctx, bobID, req.Id, models.DecisionAccept)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(f.reload(t, alice.Id).Connections))
	assert.Equal(t, 1, len(f.reload(t, bob.Id).Connections))
}

func TestAcceptKeepsPriorOneSidedConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	alice, aliceID := f.createUser(t, "alice")
	bob, bobID := f.createUser(t, "bob")

	// bob already lists alice from an earlier one-sided write
	assert.Equal(t, nil, f.users.AddConnection(ctx, bob.Id, "alice"))

	req, err := f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)

	failures := 1
	failRequesterSide(f, alice.Id, &failures)

	_, err = f.engine.Resolve(ctx, bobID, req.Id, models.DecisionAccept)
	assert.Equal(t, true, errors.Is(err, ErrPartialAccept))
	assert.Equal(t, []models.Connection{{Username: "alice"}}, f.reload(t, bob.Id).Connections)
}

func TestAcceptDropsRequestFromDeletedUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultAcceptRetries)
	alice, aliceID := f.createUser(t, "alice")
	bob, bobID := f.createUser(t, "bob")

	req, err := f.engine.Propose(ctx, aliceID, bob.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, f.users.Delete(ctx, alice.Id))

	_, err = f.engine.Resolve(ctx, bobID, req.Id, models.DecisionAccept)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	bobNow := f.reload(t, bob.Id)
	assert.Equal(t, 0, len(bobNow.ConnectionRequests))
	assert.Equal(t, 0, len(bobNow.Connections))
}
