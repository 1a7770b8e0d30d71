package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureConversationIndexes creates the pair-key uniqueness constraint and the lookup indexes.
// Documents written before pair keys existed are excluded from the unique index.
func EnsureConversationIndexes(ctx context.Context, coll *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().
				SetName("uniq_pair_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"pair_key": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "participants.email", Value: 1}, {Key: "last_updated", Value: -1}},
			Options: options.Index().SetName("participant_activity"),
		},
	}

	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}
	return nil
}

// EnsureUserIndexes indexes users by email for directory lookups.
func EnsureUserIndexes(ctx context.Context, coll *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("user_email"),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}
