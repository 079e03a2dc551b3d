package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/lib"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// MongoStore runs every operation against the connector's shared client,
// bounded by the connector timeout.
type MongoStore struct {
	conn *lib.Connector
}

func NewMongoStore(conn *lib.Connector) *MongoStore {
	return &MongoStore{conn: conn}
}

func (s *MongoStore) collection(ctx context.Context, op, name string) (*mongo.Collection, error) {
	db, err := s.conn.Database(ctx)
	if err != nil {
		return nil, opError(op, name, fmt.Errorf("%w: %v", ErrNotConnected, err))
	}
	return db.Collection(name), nil
}

// classify maps a driver error onto the store's error kinds. Connection-level
// failures drop the client coll ran on so the next call reconnects.
func (s *MongoStore) classify(coll *mongo.Collection, op, collection string, err error) error {
	var selection topology.ServerSelectionError
	var kind error
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		kind = ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		kind = ErrDuplicateKey
	case mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected), errors.As(err, &selection):
		s.conn.Invalidate(coll.Database().Client())
		kind = ErrNotConnected
	case mongo.IsTimeout(err):
		kind = ErrNotConnected
	default:
		kind = ErrOperationFailed
	}
	if kind == ErrNotFound {
		return opError(op, collection, kind)
	}
	glog.Warningf("[store] %s %s failed: %v", op, collection, err)
	return opError(op, collection, fmt.Errorf("%w: %v", kind, err))
}

func (s *MongoStore) FindAll(ctx context.Context, collection string) ([]bson.Raw, error) {
	return s.Find(ctx, collection, bson.M{})
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter bson.M) ([]bson.Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.Timeout())
	defer cancel()

	coll, err := s.collection(ctx, "find", collection)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, s.classify(coll, "find", collection, err)
	}
	defer cursor.Close(ctx)

	docs := []bson.Raw{}
	for cursor.Next(ctx) {
		docs = append(docs, append(bson.Raw(nil), cursor.Current...))
	}
	if err := cursor.Err(); err != nil {
		return nil, s.classify(coll, "find", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.M) (bson.Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.Timeout())
	defer cancel()

	coll, err := s.collection(ctx, "findOne", collection)
	if err != nil {
		return nil, err
	}
	raw, err := coll.FindOne(ctx, filter).Raw()
	if err != nil {
		return nil, s.classify(coll, "findOne", collection, err)
	}
	return raw, nil
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc any) (primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.Timeout())
	defer cancel()

	coll, err := s.collection(ctx, "insert", collection)
	if err != nil {
		return primitive.NilObjectID, err
	}
	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, s.classify(coll, "insert", collection, err)
	}
	id, _ := res.InsertedID.(primitive.ObjectID)
	return id, nil
}

func (s *MongoStore) Replace(ctx context.Context, collection string, filter bson.M, doc any) (UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.Timeout())
	defer cancel()

	coll, err := s.collection(ctx, "replace", collection)
	if err != nil {
		return UpdateResult{}, err
	}
	res, err := coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return UpdateResult{}, s.classify(coll, "replace", collection, err)
	}
	return UpdateResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount}, nil
}

func (s *MongoStore) Update(ctx context.Context, collection string, filter bson.M, update bson.M) (UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.Timeout())
	defer cancel()

	coll, err := s.collection(ctx, "update", collection)
	if err != nil {
		return UpdateResult{}, err
	}
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return UpdateResult{}, s.classify(coll, "update", collection, err)
	}
	return UpdateResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount}, nil
}

func (s *MongoStore) Push(ctx context.Context, collection string, filter bson.M, field string, value any) (UpdateResult, error) {
	return s.Update(ctx, collection, filter, bson.M{"$push": bson.M{field: value}})
}

func (s *MongoStore) Delete(ctx context.Context, collection string, filter bson.M) (DeleteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conn.Timeout())
	defer cancel()

	coll, err := s.collection(ctx, "delete", collection)
	if err != nil {
		return DeleteResult{}, err
	}
	res, err := coll.DeleteOne(ctx, filter)
	if err != nil {
		return DeleteResult{}, s.classify(coll, "delete", collection, err)
	}
	return DeleteResult{DeletedCount: res.DeletedCount}, nil
}

func (s *MongoStore) EnsureIndexes(ctx context.Context, collection string, indexes []Index) error {
	ctx, cancel := context.WithTimeout(ctx, s.conn.Timeout())
	defer cancel()

	coll, err := s.collection(ctx, "createIndexes", collection)
	if err != nil {
		return err
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, index := range indexes {
		keys := bson.D{}
		for _, key := range index.Keys {
			keys = append(keys, bson.E{Key: key, Value: 1})
		}
		opts := options.Index().SetUnique(index.Unique)
		if index.Name != "" {
			opts.SetName(index.Name)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return s.classify(coll, "createIndexes", collection, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
