package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-playground/assert/v2"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPostComments(t *testing.T) {
	ctx := context.Background()
	posts := NewPostRepository(store.NewMemoryStore())

	post := &models.Post{
		Author:  gofakeit.Username(),
		Title:   gofakeit.Sentence(4),
		Content: gofakeit.Paragraph(1, 3, 8, " "),
	}
	assert.Equal(t, nil, posts.Create(ctx, post))
	assert.NotEqual(t, primitive.NilObjectID, post.Id)
	assert.Equal(t, false, post.Date.IsZero())

	assert.Equal(t, nil, posts.AddComment(ctx, post.Id, "alice", "nice"))
	assert.Equal(t, nil, posts.AddComment(ctx, post.Id, "bob", "agreed"))

	comments, err := posts.GetComments(ctx, post.Id)
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"alice: nice", "bob: agreed"}, comments)

	err = posts.AddComment(ctx, primitive.NewObjectID(), "alice", "lost")
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	all, err := posts.GetAll(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(all))

	assert.Equal(t, nil, posts.Delete(ctx, post.Id))
	err = posts.Delete(ctx, post.Id)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
	_, err = posts.GetComments(ctx, post.Id)
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
}
