// Package repository owns the typed entities stored through the record store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrMissingID = errors.New("missing id")

// every write bumps the optimistic-concurrency token
var bumpVersion = bson.M{"_version": 1}

type UserRepository struct {
	store store.Store
}

func NewUserRepository(s store.Store) *UserRepository {
	return &UserRepository{store: s}
}

// EnsureIndexes creates the username uniqueness index and the lookup indexes
// for embedded requests. The single-pending-request rule cannot be expressed
// as a unique index over an embedded array, so writes enforce it instead.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	return r.store.EnsureIndexes(ctx, store.UsersCollection, []store.Index{
		{Name: "username_unique", Keys: []string{"username"}, Unique: true},
		{Name: "requests_id", Keys: []string{"connectionRequests._id"}},
		{Name: "requests_from", Keys: []string{"connectionRequests.fromUser"}},
	})
}

// GetAll decodes every user. Documents that do not decode are logged and
// skipped.
func (r *UserRepository) GetAll(ctx context.Context) ([]models.User, error) {
	docs, err := r.store.FindAll(ctx, store.UsersCollection)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		var user models.User
		if err := store.Decode(doc, &user); err != nil {
			glog.Warningf("[users] skipping document %s: %v", rawID(doc), err)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, store.ByID(id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	doc, err := r.store.FindOne(ctx, store.UsersCollection, filter)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := store.Decode(doc, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user and fills in its id and version.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	next := *user
	next.Version = 1
	withEmptyLists(&next)
	id, err := r.store.Insert(ctx, store.UsersCollection, next)
	if err != nil {
		return err
	}
	next.Id = id
	*user = next
	glog.V(1).Infof("[users] created %s (%s)", user.Username, id.Hex())
	return nil
}

// Replace overwrites the whole document. It only succeeds if the stored
// version is still the one the caller read; otherwise it fails with
// store.ErrConflict and writes nothing.
func (r *UserRepository) Replace(ctx context.Context, user *models.User) error {
	if user.Id.IsZero() {
		return ErrMissingID
	}
	next := *user
	next.Version = user.Version + 1
	withEmptyLists(&next)

	res, err := r.store.Replace(ctx, store.UsersCollection, versionFilter(user.Id, user.Version), next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, user.Id, "replace")
	}
	*user = next
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.store.Delete(ctx, store.UsersCollection, store.ByID(id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete user %s: %w", id.Hex(), store.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) SetCoordinates(ctx context.Context, id primitive.ObjectID, lat, lon float64) error {
	res, err := r.store.Update(ctx, store.UsersCollection, store.ByID(id), bson.M{
		"$set": bson.M{"latitude": lat, "longitude": lon},
		"$inc": bumpVersion,
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("set coordinates for %s: %w", id.Hex(), store.ErrNotFound)
	}
	return nil
}

// PushRequestIfAbsent appends req to the target's requests unless a pending
// request from the same requester is already there. The check and the push
// are one conditional write. It reports false when the target exists but
// already holds such a request.
func (r *UserRepository) PushRequestIfAbsent(ctx context.Context, req models.ConnectionRequest) (bool, error) {
	filter := bson.M{
		"_id": req.ToUser,
		"connectionRequests": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"fromUser": req.FromUser,
			"status":   models.RequestStatusPending,
		}}},
	}
	res, err := r.store.Update(ctx, store.UsersCollection, filter, bson.M{
		"$push": bson.M{"connectionRequests": req},
		"$inc":  bumpVersion,
	})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		if err := r.exists(ctx, req.ToUser); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// RestoreRequest puts a request back after a failed resolution, unless it
// is already present.
func (r *UserRepository) RestoreRequest(ctx context.Context, req models.ConnectionRequest) error {
	filter := bson.M{"_id": req.ToUser, "connectionRequests._id": bson.M{"$ne": req.Id}}
	_, err := r.store.Update(ctx, store.UsersCollection, filter, bson.M{
		"$push": bson.M{"connectionRequests": req},
		"$inc":  bumpVersion,
	})
	return err
}

// PullRequest removes one request. It returns store.ErrNotFound if the user
// or the request is gone.
func (r *UserRepository) PullRequest(ctx context.Context, userID, requestID primitive.ObjectID) error {
	filter := bson.M{"_id": userID, "connectionRequests._id": requestID}
	res, err := r.store.Update(ctx, store.UsersCollection, filter, bson.M{
		"$pull": bson.M{"connectionRequests": bson.M{"_id": requestID}},
		"$inc":  bumpVersion,
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("request %s for %s: %w", requestID.Hex(), userID.Hex(), store.ErrNotFound)
	}
	return nil
}

// ClaimRequestAndConnect removes the request and records the connection to
// peer in a single write to the target document, so a request can only be
// claimed once.
func (r *UserRepository) ClaimRequestAndConnect(ctx context.Context, userID, requestID primitive.ObjectID, peer string) error {
	filter := bson.M{"_id": userID, "connectionRequests._id": requestID}
	res, err := r.store.Update(ctx, store.UsersCollection, filter, bson.M{
		"$pull":     bson.M{"connectionRequests": bson.M{"_id": requestID}},
		"$addToSet": bson.M{"connections": models.Connection{Username: peer}},
		"$inc":      bumpVersion,
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("request %s for %s: %w", requestID.Hex(), userID.Hex(), store.ErrNotFound)
	}
	return nil
}

// AddConnection records peer in the user's connections if it is not there.
func (r *UserRepository) AddConnection(ctx context.Context, userID primitive.ObjectID, peer string) error {
	res, err := r.store.Update(ctx, store.UsersCollection, store.ByID(userID), bson.M{
		"$addToSet": bson.M{"connections": models.Connection{Username: peer}},
		"$inc":      bumpVersion,
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("add connection for %s: %w", userID.Hex(), store.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) RemoveConnection(ctx context.Context, userID primitive.ObjectID, peer string) error {
	_, err := r.store.Update(ctx, store.UsersCollection, store.ByID(userID), bson.M{
		"$pull": bson.M{"connections": bson.M{"username": peer}},
		"$inc":  bumpVersion,
	})
	return err
}

// DetachPeer removes username from the connections of every user that lists
// it and returns how many were changed.
func (r *UserRepository) DetachPeer(ctx context.Context, username string) (int, error) {
	docs, err := r.store.Find(ctx, store.UsersCollection, bson.M{"connections.username": username})
	if err != nil {
		return 0, err
	}
	detached := 0
	for _, doc := range docs {
		id, ok := doc.Lookup("_id").ObjectIDOK()
		if !ok {
			continue
		}
		if err := r.RemoveConnection(ctx, id, username); err != nil {
			return detached, err
		}
		detached += 1
	}
	return detached, nil
}

func (r *UserRepository) exists(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.store.FindOne(ctx, store.UsersCollection, store.ByID(id))
	return err
}

func (r *UserRepository) missOrConflict(ctx context.Context, id primitive.ObjectID, op string) error {
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%s user %s: %w", op, id.Hex(), store.ErrConflict)
}

// versionFilter matches the document only at the given version. Documents
// written before versioning carry no _version field and count as version 0.
func versionFilter(id primitive.ObjectID, version int64) bson.M {
	if version == 0 {
		return bson.M{"_id": id, "$or": []bson.M{
			{"_version": 0},
			{"_version": bson.M{"$exists": false}},
		}}
	}
	return bson.M{"_id": id, "_version": version}
}

// withEmptyLists keeps array fields as arrays so later $push and $addToSet
// writes never meet a null.
func withEmptyLists(user *models.User) {
	if user.Connections == nil {
		user.Connections = []models.Connection{}
	}
	if user.ConnectionRequests == nil {
		user.ConnectionRequests = []models.ConnectionRequest{}
	}
}

func rawID(doc bson.Raw) string {
	if id, ok := doc.Lookup("_id").ObjectIDOK(); ok {
		return id.Hex()
	}
	return "?"
}
