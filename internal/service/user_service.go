package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/cache"
	"github.com/anik12136/uiu-pathshala-server/internal/model"
	"github.com/anik12136/uiu-pathshala-server/internal/repo"

	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	nameCachePrefix    = "user:name:"
)

// UserService is the User Directory: display names and free-text search over users.
type UserService interface {
	DisplayName(ctx context.Context, email string) (string, error)
	Search(ctx context.Context, query string, limit int, exclude string) ([]model.User, error)
}

type userService struct {
	repo   repo.UserRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewUserService builds the directory. c may be nil, in which case every lookup hits the store.
func NewUserService(repo repo.UserRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) UserService {
	return &userService{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *userService) DisplayName(ctx context.Context, email string) (string, error) {
	email = model.NormalizeIdentity(email)
	if email == "" {
		return "", ErrMissingIdentity
	}

	key := nameCachePrefix + email
	if s.cache != nil {
		name, err := s.cache.Get(ctx, key)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("display name cache read failed", zap.String("email", email), zap.Error(err))
		}
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", internalError("find user", err)
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, user.Name, s.ttl); err != nil {
			s.logger.Warn("display name cache write failed", zap.String("email", email), zap.Error(err))
		}
	}
	return user.Name, nil
}

// Search treats query as literal text. exclude, when set, drops that identity from the results.
func (s *userService) Search(ctx context.Context, query string, limit int, exclude string) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	exclude = model.NormalizeIdentity(exclude)
	fetch := limit
	if exclude != "" {
		fetch++
	}

	users, err := s.repo.Search(ctx, regexp.QuoteMeta(query), int64(fetch))
	if err != nil {
		return nil, internalError("search users", err)
	}

	if exclude != "" {
		users = Filter(users, func(u model.User) bool {
			return model.NormalizeIdentity(u.Email) != exclude
		})
	}
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}
