package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/db"
	"github.com/anik12136/uiu-pathshala-server/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// AppendMessage pushes msg, refreshes last_updated and clears the recipient's read flag in one
// update. It returns (nil, nil) when no document matched: the conversation is missing, recipient
// is not a participant, or msg.ClientMessageID is already stored.
func (r *conversationRepository) AppendMessage(ctx context.Context, id primitive.ObjectID, recipient string, msg model.Message) (*model.Conversation, error) {
	if id.IsZero() {
		return nil, ErrInvalidConversationID
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, ErrInvalidMessage
	}
	recipient = model.NormalizeIdentity(recipient)
	if recipient == "" {
		return nil, ErrInvalidIdentity
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	defer r.metrics.ObserveStore("append_message", time.Now())

	fb := db.NewFilter().ObjectID("_id", id).Eq("participants.email", recipient)
	if msg.ClientMessageID != "" {
		fb.Ne("messages.client_message_id", msg.ClientMessageID)
	}
	filter := fb.Build()

	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set": bson.M{
			"last_updated":                   msg.Timestamp,
			"participants.$[recipient].read": false,
		},
	}
	arrayFilter := bson.M{"recipient.email": recipient}

	var conversation *model.Conversation
	run := func(ctx context.Context) error {
		var err error
		conversation, err = r.store.FindOneAndUpdate(ctx, filter, update, arrayFilter)
		return err
	}

	// Only appends carrying a client id are safe to repeat.
	var err error
	if msg.ClientMessageID != "" {
		err = withRetry(ctx, r.logger, "append_message", run)
	} else {
		err = run(ctx)
	}

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("append matched no conversation",
				zap.String("conversation_id", id.Hex()),
				zap.String("recipient", recipient),
				zap.String("client_message_id", msg.ClientMessageID),
			)
			return nil, nil
		}
		r.logger.Error("failed to append message",
			zap.String("conversation_id", id.Hex()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("append message: %w", err)
	}

	r.logger.Info("message appended",
		zap.String("conversation_id", id.Hex()),
		zap.String("message_id", msg.ID),
		zap.Int("message_count", len(conversation.Messages)),
	)
	return conversation, nil
}

// MarkRead sets identity's read flag. It reports false when no conversation has that participant.
func (r *conversationRepository) MarkRead(ctx context.Context, id primitive.ObjectID, identity string) (bool, error) {
	if id.IsZero() {
		return false, ErrInvalidConversationID
	}
	identity = model.NormalizeIdentity(identity)
	if identity == "" {
		return false, ErrInvalidIdentity
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	defer r.metrics.ObserveStore("mark_read", time.Now())

	filter := db.NewFilter().ObjectID("_id", id).Eq("participants.email", identity).Build()
	update := bson.M{"$set": bson.M{"participants.$.read": true}}

	var result *mongo.UpdateResult
	err := withRetry(ctx, r.logger, "mark_read", func(ctx context.Context) error {
		var err error
		result, err = r.store.UpdateOne(ctx, filter, update)
		return err
	})
	if err != nil {
		r.logger.Error("failed to mark conversation read",
			zap.String("conversation_id", id.Hex()),
			zap.String("identity", identity),
			zap.Error(err),
		)
		return false, fmt.Errorf("mark read: %w", err)
	}

	r.logger.Debug("mark read applied",
		zap.String("conversation_id", id.Hex()),
		zap.String("identity", identity),
		zap.Int64("matched", result.MatchedCount),
		zap.Int64("modified", result.ModifiedCount),
	)
	return result.MatchedCount > 0, nil
}
