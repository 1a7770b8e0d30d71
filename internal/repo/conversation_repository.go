package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/db"
	"github.com/anik12136/uiu-pathshala-server/internal/metrics"
	"github.com/anik12136/uiu-pathshala-server/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type conversationRepository struct {
	store   *db.Repository[model.Conversation]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// ConversationRepository is the Conversation Store. Lookups return (nil, nil) when nothing matches.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error)
	FindByPair(ctx context.Context, identityA, identityB string) (*model.Conversation, error)
	ListByParticipant(ctx context.Context, identity string) ([]model.Conversation, error)
	AppendMessage(ctx context.Context, id primitive.ObjectID, recipient string, msg model.Message) (*model.Conversation, error)
	MarkRead(ctx context.Context, id primitive.ObjectID, identity string) (bool, error)
}

func NewConversationRepository(con *mongo.Database, collection string, logger *zap.Logger, m *metrics.Metrics) ConversationRepository {
	return &conversationRepository{
		store:   db.NewRepository[model.Conversation](con, collection),
		logger:  logger,
		metrics: m,
	}
}

// Create inserts a conversation. A second document for the same pair fails with ErrDuplicateConversation.
func (r *conversationRepository) Create(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	if conversation == nil || conversation.PairKey == "" {
		return nil, ErrInvalidIdentity
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	defer r.metrics.ObserveStore("create_conversation", time.Now())

	doc := *conversation
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}

	// Not retried: a timed out insert may have landed, and the duplicate path would then
	// push the first message a second time.
	if _, err := r.store.Create(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Debug("conversation already exists for pair",
				zap.String("pair_key", doc.PairKey),
			)
			return nil, ErrDuplicateConversation
		}
		r.logger.Error("failed to create conversation",
			zap.String("pair_key", doc.PairKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	r.logger.Info("conversation created",
		zap.String("conversation_id", doc.ID.Hex()),
		zap.String("pair_key", doc.PairKey),
	)
	return &doc, nil
}

// FindByID fetches a conversation document by ID
func (r *conversationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error) {
	if id.IsZero() {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	defer r.metrics.ObserveStore("find_conversation", time.Now())

	filter := db.NewFilter().ObjectID("_id", id).Build()
	return r.findOne(ctx, "find_conversation", filter, zap.String("conversation_id", id.Hex()))
}

// FindByPair looks a conversation up by its normalized pair key. Documents written without a
// pair key are matched on their participant emails instead.
func (r *conversationRepository) FindByPair(ctx context.Context, identityA, identityB string) (*model.Conversation, error) {
	a, b := model.NormalizeIdentity(identityA), model.NormalizeIdentity(identityB)
	if a == "" || b == "" {
		return nil, ErrInvalidIdentity
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	defer r.metrics.ObserveStore("find_pair", time.Now())

	key := model.PairKey(a, b)
	legacy := db.NewFilter().
		Exists("pair_key", false).
		All("participants.email", a, b).
		Size("participants", 2).
		Build()
	filter := db.NewFilter().Or(bson.M{"pair_key": key}, legacy).Build()

	return r.findOne(ctx, "find_pair", filter, zap.String("pair_key", key))
}

// ListByParticipant returns every conversation identity belongs to, most recent activity first.
// Only the last message of each conversation is loaded.
func (r *conversationRepository) ListByParticipant(ctx context.Context, identity string) ([]model.Conversation, error) {
	identity = model.NormalizeIdentity(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	defer r.metrics.ObserveStore("list_conversations", time.Now())

	filter := db.NewFilter().Eq("participants.email", identity).Build()
	opts := options.Find().
		SetSort(bson.D{{Key: "last_updated", Value: -1}}).
		SetProjection(bson.M{"messages": bson.M{"$slice": -1}})

	var conversations []model.Conversation
	err := withRetry(ctx, r.logger, "list_conversations", func(ctx context.Context) error {
		var err error
		conversations, err = r.store.FindAll(ctx, filter, opts)
		return err
	})
	if err != nil {
		r.logger.Error("failed to list conversations",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list conversations: %w", classifyReadError(err))
	}

	r.logger.Debug("conversations listed",
		zap.String("identity", identity),
		zap.Int("count", len(conversations)),
	)
	return conversations, nil
}

func (r *conversationRepository) findOne(ctx context.Context, operation string, filter bson.M, field zap.Field) (*model.Conversation, error) {
	var conversation *model.Conversation
	err := withRetry(ctx, r.logger, operation, func(ctx context.Context) error {
		var err error
		conversation, err = r.store.FindOne(ctx, filter)
		return err
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("conversation not found", field)
			return nil, nil
		}
		r.logger.Error("failed to fetch conversation", field, zap.Error(err))
		return nil, fmt.Errorf("fetch conversation: %w", classifyReadError(err))
	}
	return conversation, nil
}
