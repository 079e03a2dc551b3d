package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-playground/assert/v2"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestUsers(t *testing.T) (*UserRepository, *store.MemoryStore) {
	s := store.NewMemoryStore()
	users := NewUserRepository(s)
	assert.Equal(t, nil, users.EnsureIndexes(context.Background()))
	return users, s
}

func fakeUser(i int) *models.User {
	return &models.User{
		Username:  fmt.Sprintf("%s%d", gofakeit.Username(), i),
		Password:  gofakeit.Password(true, true, true, false, false, 12),
		Email:     gofakeit.Email(),
		Avatar:    gofakeit.URL(),
		Education: gofakeit.JobTitle(),
		Degree:    gofakeit.JobDescriptor(),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)

	user := fakeUser(0)
	assert.Equal(t, nil, users.Create(ctx, user))
	assert.NotEqual(t, primitive.NilObjectID, user.Id)
	assert.Equal(t, int64(1), user.Version)

	byID, err := users.GetByID(ctx, user.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, user.Username, byID.Username)
	assert.Equal(t, 0, len(byID.Connections))

	byName, err := users.GetByUsername(ctx, user.Username)
	assert.Equal(t, nil, err)
	assert.Equal(t, user.Id, byName.Id)

	_, err = users.GetByID(ctx, primitive.NewObjectID())
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	dup := fakeUser(1)
	dup.Username = user.Username
	err = users.Create(ctx, dup)
	assert.Equal(t, true, errors.Is(err, store.ErrDuplicateKey))
}

func TestGetAllSkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	users, s := newTestUsers(t)

	for i := 0; i < 3; i += 1 {
		assert.Equal(t, nil, users.Create(ctx, fakeUser(i)))
	}
	_, err := s.Insert(ctx, store.UsersCollection, bson.M{"username": bson.M{"not": "a string"}})
	assert.Equal(t, nil, err)

	all, err := users.GetAll(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, len(all))
}

func TestReplaceDetectsConflict(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)

	user := fakeUser(0)
	assert.Equal(t, nil, users.Create(ctx, user))

	stale, err := users.GetByID(ctx, user.Id)
	assert.Equal(t, nil, err)

	// a field-scoped write lands between the read and the replace
	assert.Equal(t, nil, users.SetCoordinates(ctx, user.Id, 40.7, -74.0))

	stale.Education = "changed"
	err = users.Replace(ctx, stale)
	assert.Equal(t, true, errors.Is(err, store.ErrConflict))

	current, err := users.GetByID(ctx, user.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, current.HasLocation())
	assert.NotEqual(t, "changed", current.Education)

	current.Education = "changed"
	assert.Equal(t, nil, users.Replace(ctx, current))
	assert.Equal(t, int64(3), current.Version)

	reloaded, err := users.GetByID(ctx, user.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, "changed", reloaded.Education)
	assert.Equal(t, 40.7, *reloaded.Latitude)
}

func TestReplaceLegacyDocumentWithoutVersion(t *testing.T) {
	ctx := context.Background()
	users, s := newTestUsers(t)

	id, err := s.Insert(ctx, store.UsersCollection, bson.M{
		"username":           "legacy",
		"connections":        bson.A{},
		"connectionRequests": bson.A{},
	})
	assert.Equal(t, nil, err)

	user, err := users.GetByID(ctx, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(0), user.Version)

	user.Degree = "BSc"
	assert.Equal(t, nil, users.Replace(ctx, user))
	assert.Equal(t, int64(1), user.Version)
}

func TestReplaceAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)

	err := users.Replace(ctx, &models.User{Username: "nobody"})
	assert.Equal(t, true, errors.Is(err, ErrMissingID))

	err = users.Replace(ctx, &models.User{Id: primitive.NewObjectID(), Username: "nobody", Version: 1})
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	err = users.Delete(ctx, primitive.NewObjectID())
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	user := fakeUser(0)
	assert.Equal(t, nil, users.Create(ctx, user))
	assert.Equal(t, nil, users.Delete(ctx, user.Id))
	_, err = users.GetByID(ctx, user.Id)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
}

func TestPushRequestIfAbsent(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)

	from, to := fakeUser(0), fakeUser(1)
	assert.Equal(t, nil, users.Create(ctx, from))
	assert.Equal(t, nil, users.Create(ctx, to))

	req := models.ConnectionRequest{
		Id:           primitive.NewObjectID(),
		FromUser:     from.Id,
		ToUser:       to.Id,
		FromUsername: from.Username,
		ToUsername:   to.Username,
		Status:       models.RequestStatusPending,
	}
	pushed, err := users.PushRequestIfAbsent(ctx, req)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, pushed)

	again := req
	again.Id = primitive.NewObjectID()
	pushed, err = users.PushRequestIfAbsent(ctx, again)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, pushed)

	missing := req
	missing.ToUser = primitive.NewObjectID()
	_, err = users.PushRequestIfAbsent(ctx, missing)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	target, err := users.GetByID(ctx, to.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(target.PendingRequests()))
	assert.Equal(t, req.Id, target.PendingRequests()[0].Id)

	assert.Equal(t, nil, users.PullRequest(ctx, to.Id, req.Id))
	err = users.PullRequest(ctx, to.Id, req.Id)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	assert.Equal(t, nil, users.RestoreRequest(ctx, req))
	assert.Equal(t, nil, users.RestoreRequest(ctx, req))
	target, err = users.GetByID(ctx, to.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(target.ConnectionRequests))
}

func TestClaimRequestAndConnect(t *testing.T) {
	ctx := context.Background()
	users, _ := newTestUsers(t)

	from, to := fakeUser(0), fakeUser(1)
	assert.Equal(t, nil, users.Create(ctx, from))
	assert.Equal(t, nil, users.Create(ctx, to))

	req := models.ConnectionRequest{Id: primitive.NewObjectID(), FromUser: from.Id, ToUser: to.Id, Status: models.RequestStatusPending}
	_, err := users.PushRequestIfAbsent(ctx, req)
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, users.ClaimRequestAndConnect(ctx, to.Id, req.Id, from.Username))
	err = users.ClaimRequestAndConnect(ctx, to.Id, req.Id, from.Username)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	target, err := users.GetByID(ctx, to.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(target.ConnectionRequests))
	assert.Equal(t, []models.Connection{{Username: from.Username}}, target.Connections)

	assert.Equal(t, nil, users.AddConnection(ctx, from.Id, to.Username))
	assert.Equal(t, nil, users.AddConnection(ctx, from.Id, to.Username))
	requester, err := users.GetByID(ctx, from.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(requester.Connections))

	assert.Equal(t, nil, users.RemoveConnection(ctx, from.Id, to.Username))
	requester, err = users.GetByID(ctx, from.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(requester.Connections))
}
