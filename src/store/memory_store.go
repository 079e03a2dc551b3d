package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps collections in process. Each call is atomic with respect
// to every other call, which matches the per-document atomicity of the
// remote store and nothing more.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]bson.M
	indexes     map[string][]Index
	closed      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[string][]bson.M{},
		indexes:     map[string][]Index{},
	}
}

func (s *MemoryStore) checkOpen(op, collection string) error {
	if s.closed {
		return opError(op, collection, ErrNotConnected)
	}
	return nil
}

func (s *MemoryStore) FindAll(ctx context.Context, collection string) ([]bson.Raw, error) {
	return s.Find(ctx, collection, bson.M{})
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter bson.M) ([]bson.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("find", collection); err != nil {
		return nil, err
	}
	filter, err := toDocument(filter)
	if err != nil {
		return nil, opError("find", collection, fmt.Errorf("%w: %v", ErrOperationFailed, err))
	}
	docs := []bson.Raw{}
	for _, doc := range s.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, opError("find", collection, fmt.Errorf("%w: %v", ErrOperationFailed, err))
		}
		if !ok {
			continue
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, opError("find", collection, fmt.Errorf("%w: %v", ErrOperationFailed, err))
		}
		docs = append(docs, raw)
	}
	return docs, nil
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter bson.M) (bson.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("findOne", collection); err != nil {
		return nil, err
	}
	i, err := s.indexOf(collection, filter)
	if err != nil {
		return nil, opError("findOne", collection, err)
	}
	if i < 0 {
		return nil, opError("findOne", collection, ErrNotFound)
	}
	raw, err := bson.Marshal(s.collections[collection][i])
	if err != nil {
		return nil, opError("findOne", collection, fmt.Errorf("%w: %v", ErrOperationFailed, err))
	}
	return raw, nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc any) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("insert", collection); err != nil {
		return primitive.NilObjectID, err
	}
	d, err := toDocument(doc)
	if err != nil {
		return primitive.NilObjectID, opError("insert", collection, fmt.Errorf("%w: %v", ErrOperationFailed, err))
	}
	id, ok := d["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		id = primitive.NewObjectID()
		d["_id"] = id
	}
	if i, _ := s.indexOf(collection, bson.M{"_id": id}); i >= 0 {
		return primitive.NilObjectID, opError("insert", collection, ErrDuplicateKey)
	}
	if err := s.checkUnique(collection, d, -1); err != nil {
		return primitive.NilObjectID, opError("insert", collection, err)
	}
	s.collections[collection] = append(s.collections[collection], d)
	return id, nil
}

func (s *MemoryStore) Replace(ctx context.Context, collection string, filter bson.M, doc any) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("replace", collection); err != nil {
		return UpdateResult{}, err
	}
	i, err := s.indexOf(collection, filter)
	if err != nil {
		return UpdateResult{}, opError("replace", collection, err)
	}
	if i < 0 {
		return UpdateResult{}, nil
	}
	d, err := toDocument(doc)
	if err != nil {
		return UpdateResult{}, opError("replace", collection, fmt.Errorf("%w: %v", ErrOperationFailed, err))
	}
	current := s.collections[collection][i]
	if id, ok := d["_id"]; ok && !reflect.DeepEqual(id, current["_id"]) {
		return UpdateResult{}, opError("replace", collection, fmt.Errorf("%w: _id is immutable", ErrOperationFailed))
	}
	d["_id"] = current["_id"]
	if err := s.checkUnique(collection, d, i); err != nil {
		return UpdateResult{}, opError("replace", collection, err)
	}
	modified := int64(0)
	if !reflect.DeepEqual(current, d) {
		modified = 1
	}
	s.collections[collection][i] = d
	return UpdateResult{MatchedCount: 1, ModifiedCount: modified}, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection string, filter bson.M, update bson.M) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("update", collection); err != nil {
		return UpdateResult{}, err
	}
	i, err := s.indexOf(collection, filter)
	if err != nil {
		return UpdateResult{}, opError("update", collection, err)
	}
	if i < 0 {
		return UpdateResult{}, nil
	}
	current := s.collections[collection][i]
	// Work on a copy so a failed update leaves the document untouched.
	next := normalizeDocument(current)
	if err := applyUpdate(next, update); err != nil {
		return UpdateResult{}, opError("update", collection, fmt.Errorf("%w: %v", ErrOperationFailed, err))
	}
	if err := s.checkUnique(collection, next, i); err != nil {
		return UpdateResult{}, opError("update", collection, err)
	}
	modified := int64(0)
	if !reflect.DeepEqual(current, next) {
		modified = 1
	}
	s.collections[collection][i] = next
	return UpdateResult{MatchedCount: 1, ModifiedCount: modified}, nil
}

func (s *MemoryStore) Push(ctx context.Context, collection string, filter bson.M, field string, value any) (UpdateResult, error) {
	return s.Update(ctx, collection, filter, bson.M{"$push": bson.M{field: value}})
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, filter bson.M) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("delete", collection); err != nil {
		return DeleteResult{}, err
	}
	i, err := s.indexOf(collection, filter)
	if err != nil {
		return DeleteResult{}, opError("delete", collection, err)
	}
	if i < 0 {
		return DeleteResult{}, nil
	}
	docs := s.collections[collection]
	s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
	return DeleteResult{DeletedCount: 1}, nil
}

func (s *MemoryStore) EnsureIndexes(ctx context.Context, collection string, indexes []Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("createIndexes", collection); err != nil {
		return err
	}
	for _, index := range indexes {
		if index.Unique {
			seen := map[string]bool{}
			for _, doc := range s.collections[collection] {
				key, ok := uniqueKey(doc, index)
				if !ok {
					continue
				}
				if seen[key] {
					return opError("createIndexes", collection, ErrDuplicateKey)
				}
				seen[key] = true
			}
		}
		s.indexes[collection] = append(s.indexes[collection], index)
	}
	return nil
}

// Close makes every later call fail with ErrNotConnected.
func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) indexOf(collection string, filter bson.M) (int, error) {
	filter, err := toDocument(filter)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	for i, doc := range s.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return -1, fmt.Errorf("%w: %v", ErrOperationFailed, err)
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func (s *MemoryStore) checkUnique(collection string, doc bson.M, self int) error {
	for _, index := range s.indexes[collection] {
		if !index.Unique {
			continue
		}
		key, ok := uniqueKey(doc, index)
		if !ok {
			continue
		}
		for i, other := range s.collections[collection] {
			if i == self {
				continue
			}
			if otherKey, ok := uniqueKey(other, index); ok && otherKey == key {
				return fmt.Errorf("%w: index %s", ErrDuplicateKey, index.Name)
			}
		}
	}
	return nil
}

// uniqueKey renders the indexed values of a document. Documents missing any
// indexed field are not constrained.
func uniqueKey(doc bson.M, index Index) (string, bool) {
	parts := make([]string, 0, len(index.Keys))
	for _, key := range index.Keys {
		v, ok := getPath(doc, key)
		if !ok {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%#v", v))
	}
	return strings.Join(parts, "\x00"), true
}
