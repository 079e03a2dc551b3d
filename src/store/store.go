// Package store is a thin typed façade over a document database. Collections
// hold one document per entity, addressed by _id or by a field filter.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	UsersCollection = "users"
	PostsCollection = "posts"
)

var (
	// ErrNotConnected means the store handle is absent or broken.
	ErrNotConnected = errors.New("store not connected")
	// ErrOperationFailed is any other failure reported by the store.
	ErrOperationFailed = errors.New("store operation failed")
	ErrNotFound        = errors.New("not found")
	// ErrConflict means a guarded write found the document changed since it was read.
	ErrConflict     = errors.New("conflict")
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrDecode means a stored document does not match the expected shape.
	ErrDecode = errors.New("decode failure")
)

// Error carries the failed operation alongside its kind.
type Error struct {
	Op         string
	Collection string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op, collection string, err error) error {
	return &Error{Op: op, Collection: collection, Err: err}
}

type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

type DeleteResult struct {
	DeletedCount int64
}

// Index describes an ascending index over one or more field paths.
type Index struct {
	Name   string
	Keys   []string
	Unique bool
}

// Store is the record store adapter. Every call is a suspension point: callers
// must not assume a document is unchanged across two calls, and no call is
// transactional across documents.
type Store interface {
	FindAll(ctx context.Context, collection string) ([]bson.Raw, error)
	Find(ctx context.Context, collection string, filter bson.M) ([]bson.Raw, error)
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, collection string, filter bson.M) (bson.Raw, error)
	Insert(ctx context.Context, collection string, doc any) (primitive.ObjectID, error)
	// Replace overwrites the first matching document. The stored _id is kept.
	Replace(ctx context.Context, collection string, filter bson.M, doc any) (UpdateResult, error)
	// Update applies field-scoped operators to the first matching document.
	Update(ctx context.Context, collection string, filter bson.M, update bson.M) (UpdateResult, error)
	// Push appends value to an array field without reading the document.
	Push(ctx context.Context, collection string, filter bson.M, field string, value any) (UpdateResult, error)
	Delete(ctx context.Context, collection string, filter bson.M) (DeleteResult, error)
	EnsureIndexes(ctx context.Context, collection string, indexes []Index) error
	Close(ctx context.Context) error
}

// Decode unmarshals a raw document, tagging failures with ErrDecode.
func Decode(raw bson.Raw, v any) error {
	if err := bson.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// ByID is the filter for a single document.
func ByID(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id}
}
