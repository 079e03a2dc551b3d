package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Post struct {
	Id       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Author   string             `json:"author" bson:"author"`
	Title    string             `json:"title" bson:"title"`
	Content  string             `json:"content" bson:"content"`
	Date     time.Time          `json:"date" bson:"date"`
	Comments []string           `json:"comments" bson:"comments"`
}

// FormatComment renders a comment the way it is stored: "<author>: <content>".
func FormatComment(author, content string) string {
	return author + ": " + content
}
