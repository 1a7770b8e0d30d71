package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a user document in MongoDB
type User struct {
	ID    primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email string             `json:"email" bson:"email"`
	Name  string             `json:"name" bson:"name"`
	Photo string             `json:"photo,omitempty" bson:"photo,omitempty"`
}
