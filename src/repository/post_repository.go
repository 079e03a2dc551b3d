package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PostRepository struct {
	store store.Store
}

func NewPostRepository(s store.Store) *PostRepository {
	return &PostRepository{store: s}
}

func (r *PostRepository) GetAll(ctx context.Context) ([]models.Post, error) {
	docs, err := r.store.FindAll(ctx, store.PostsCollection)
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		var post models.Post
		if err := store.Decode(doc, &post); err != nil {
			glog.Warningf("[posts] skipping document %s: %v", rawID(doc), err)
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (r *PostRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	doc, err := r.store.FindOne(ctx, store.PostsCollection, store.ByID(id))
	if err != nil {
		return nil, err
	}
	var post models.Post
	if err := store.Decode(doc, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	next := *post
	if next.Date.IsZero() {
		next.Date = time.Now().UTC()
	}
	if next.Comments == nil {
		next.Comments = []string{}
	}
	id, err := r.store.Insert(ctx, store.PostsCollection, next)
	if err != nil {
		return err
	}
	next.Id = id
	*post = next
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.store.Delete(ctx, store.PostsCollection, store.ByID(id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete post %s: %w", id.Hex(), store.ErrNotFound)
	}
	return nil
}

// AddComment appends "<author>: <content>" to the post without reading it.
func (r *PostRepository) AddComment(ctx context.Context, postID primitive.ObjectID, author, content string) error {
	res, err := r.store.Push(ctx, store.PostsCollection, store.ByID(postID), "comments", models.FormatComment(author, content))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("comment on post %s: %w", postID.Hex(), store.ErrNotFound)
	}
	return nil
}

func (r *PostRepository) GetComments(ctx context.Context, postID primitive.ObjectID) ([]string, error) {
	post, err := r.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Comments == nil {
		return []string{}, nil
	}
	return post.Comments, nil
}
