package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"erp/internal/user/models"
	id "erp/pkg/domain"
	txcontext "erp/pkg/platform/tx"
)

const userKeyPrefix = "erp:user:"

// CachedStore serves FindByID from redis and invalidates on every write.
// Redis failures degrade to the backing store; they never fail a request.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*CachedStore)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedStore) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCached(next Store, client *redis.Client, ttl time.Duration, opts ...CacheOption) *CachedStore {
	c := &CachedStore{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheEntry keeps fields the public JSON form hides.
type cacheEntry struct {
	models.User
	InviteHash string `json:"invite_hash,omitempty"`
}

func cacheKey(userID id.UserID) string {
	return userKeyPrefix + userID.String()
}

func (c *CachedStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	key := cacheKey(userID)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cacheEntry
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			u := entry.User
			u.InviteHash = entry.InviteHash
			return &u, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable user cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "user cache read failed", "key", key, "error", err)
	}

	u, err := c.next.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, u)
	return u, nil
}

func (c *CachedStore) store(ctx context.Context, u *models.User) {
	raw, err := json.Marshal(cacheEntry{User: *u, InviteHash: u.InviteHash})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(u.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "user cache write failed", "user_id", u.ID.String(), "error", err)
	}
}

// invalidateWrite drops the entry now and again once the enclosing unit of
// work commits. A reader racing the open transaction can only repopulate the
// entry with the pre-commit row, which the second delete removes.
func (c *CachedStore) invalidateWrite(ctx context.Context, userID id.UserID) {
	c.invalidate(ctx, userID)
	txcontext.AfterCommit(ctx, func(ctx context.Context) {
		c.invalidate(ctx, userID)
	})
}

func (c *CachedStore) invalidate(ctx context.Context, userID id.UserID) {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "user cache invalidation failed", "user_id", userID.String(), "error", err)
	}
}

func (c *CachedStore) Create(ctx context.Context, user *models.User) error {
	return c.next.Create(ctx, user)
}

// List always reads through; filtered listings are not cached.
func (c *CachedStore) List(ctx context.Context, filter ListFilter) ([]*models.User, error) {
	return c.next.List(ctx, filter)
}

func (c *CachedStore) Execute(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error) {
	u, err := c.next.Execute(ctx, userID, fn)
	if err != nil {
		return nil, err
	}
	c.invalidateWrite(ctx, userID)
	return u, nil
}

func (c *CachedStore) DeleteIf(ctx context.Context, userID id.UserID, check func(*models.User) error) (*models.User, error) {
	u, err := c.next.DeleteIf(ctx, userID, check)
	if err == nil {
		c.invalidateWrite(ctx, userID)
	}
	return u, err
}
