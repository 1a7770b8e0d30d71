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
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// UserRepository reads the users collection owned by account management.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Search(ctx context.Context, pattern string, limit int64) ([]model.User, error)
}

type userRepository struct {
	store   *db.Repository[model.User]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewUserRepository(con *mongo.Database, collection string, logger *zap.Logger, m *metrics.Metrics) UserRepository {
	return &userRepository{
		store:   db.NewRepository[model.User](con, collection),
		logger:  logger,
		metrics: m,
	}
}

// FindByEmail returns (nil, nil) for an unknown email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeIdentity(email)
	if email == "" {
		return nil, ErrInvalidIdentity
	}

	ctx, cancel := ensureTimeout(ctx, 5*time.Second)
	defer cancel()
	defer r.metrics.ObserveStore("find_user", time.Now())

	filter := db.NewFilter().Eq("email", email).Build()

	var user *model.User
	err := withRetry(ctx, r.logger, "find_user", func(ctx context.Context) error {
		var err error
		user, err = r.store.FindOne(ctx, filter)
		return err
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("user not found", zap.String("email", email))
			return nil, nil
		}
		r.logger.Error("failed to fetch user", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("fetch user: %w", classifyReadError(err))
	}
	return user, nil
}

// Search matches pattern case-insensitively against name or email. pattern must be regex-quoted.
func (r *userRepository) Search(ctx context.Context, pattern string, limit int64) ([]model.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	defer r.metrics.ObserveStore("search_users", time.Now())

	filter := db.NewFilter().Or(
		db.NewFilter().Contains("name", pattern).Build(),
		db.NewFilter().Contains("email", pattern).Build(),
	).Build()
	opts := options.Find().
		SetLimit(limit).
		SetSort(bson.D{{Key: "name", Value: 1}})

	var users []model.User
	err := withRetry(ctx, r.logger, "search_users", func(ctx context.Context) error {
		var err error
		users, err = r.store.FindAll(ctx, filter, opts)
		return err
	})
	if err != nil {
		r.logger.Error("failed to search users", zap.String("pattern", pattern), zap.Error(err))
		return nil, fmt.Errorf("search users: %w", classifyReadError(err))
	}
	return users, nil
}
