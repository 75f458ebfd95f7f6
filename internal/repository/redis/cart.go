// Package redis provides a read-through Redis cache in front of another
// repository.CartRepository.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nicolaspannunzio/backend-I/internal/domain"
	"github.com/nicolaspannunzio/backend-I/internal/repository"
)

const (
	keyPrefix = "cart:"
	keyAll    = "carts:all"
	genSuffix = ":gen"
)

// fillScript stores ARGV[1] under KEYS[1] only while the generation counter
// KEYS[2] still holds ARGV[2], the value read before the backing store was
// consulted. A missing counter counts as "0".
var fillScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if (cur or '0') ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// CachedCartRepository caches List and GetByID results in Redis and drops
// the affected keys after every successful write. The wrapped repository
// stays the source of truth: cache failures are logged and bypassed.
//
// Every cached key has a generation counter bumped on invalidation. A miss
// records the generation before reading the wrapped repository and only fills
// the key if no write bumped it in between, so a read racing a write never
// caches the pre-write value.
type CachedCartRepository struct {
	next   repository.CartRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ repository.CartRepository = (*CachedCartRepository)(nil)

// NewCachedCartRepository wraps next with a cache whose entries live for ttl.
func NewCachedCartRepository(next repository.CartRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCartRepository {
	return &CachedCartRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cartKey(id int) string {
	return keyPrefix + strconv.Itoa(id)
}

// Create stores a new cart and drops the cached listing.
func (r *CachedCartRepository) Create(ctx context.Context) (*domain.Cart, error) {
	cart, err := r.next.Create(ctx)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, keyAll)
	return cart, nil
}

// List returns the cached listing, loading it from the wrapped repository on a miss.
func (r *CachedCartRepository) List(ctx context.Context) ([]domain.Cart, error) {
	var carts []domain.Cart
	if r.get(ctx, keyAll, &carts) {
		if carts == nil {
			carts = []domain.Cart{}
		}
		return carts, nil
	}

	gen := r.generation(ctx, keyAll)
	carts, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, keyAll, gen, carts)
	return carts, nil
}

// GetByID returns the cached cart, loading it from the wrapped repository on
// a miss. Lookups that fail are not cached.
func (r *CachedCartRepository) GetByID(ctx context.Context, id int) (*domain.Cart, error) {
	key := cartKey(id)

	var cart domain.Cart
	if r.get(ctx, key, &cart) {
		if cart.Products == nil {
			cart.Products = []domain.CartItem{}
		}
		return &cart, nil
	}

	gen := r.generation(ctx, key)
	found, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, key, gen, found)
	return found, nil
}

// AddItem delegates and invalidates the cart's entries.
func (r *CachedCartRepository) AddItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error) {
	return r.write(ctx, cartID, func() (*domain.Cart, error) {
		return r.next.AddItem(ctx, cartID, productID)
	})
}

// RemoveItem delegates and invalidates the cart's entries.
func (r *CachedCartRepository) RemoveItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error) {
	return r.write(ctx, cartID, func() (*domain.Cart, error) {
		return r.next.RemoveItem(ctx, cartID, productID)
	})
}

// ReplaceItems delegates and invalidates the cart's entries.
func (r *CachedCartRepository) ReplaceItems(ctx context.Context, cartID int, items []domain.CartItem) (*domain.Cart, error) {
	return r.write(ctx, cartID, func() (*domain.Cart, error) {
		return r.next.ReplaceItems(ctx, cartID, items)
	})
}

// SetItemQuantity delegates and invalidates the cart's entries.
func (r *CachedCartRepository) SetItemQuantity(ctx context.Context, cartID int, productID domain.ProductID, quantity int) (*domain.Cart, error) {
	return r.write(ctx, cartID, func() (*domain.Cart, error) {
		return r.next.SetItemQuantity(ctx, cartID, productID, quantity)
	})
}

// Ping checks the Redis connection.
func (r *CachedCartRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *CachedCartRepository) write(ctx context.Context, cartID int, fn func() (*domain.Cart, error)) (*domain.Cart, error) {
	cart, err := fn()
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, keyAll, cartKey(cartID))
	return cart, nil
}

// get reports whether key was found and decoded into dst.
func (r *CachedCartRepository) get(ctx context.Context, key string, dst any) bool {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "cart cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		r.logger.WarnContext(ctx, "cart cache entry corrupt, dropping",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		r.invalidate(ctx, key)
		return false
	}
	return true
}

// generation returns the current generation of key, "0" when unset. On a
// Redis error it returns "" which never matches, so the fill is skipped.
func (r *CachedCartRepository) generation(ctx context.Context, key string) string {
	gen, err := r.client.Get(ctx, key+genSuffix).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0"
	case err != nil:
		r.logger.WarnContext(ctx, "cart cache generation read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return gen
}

// fill caches v under key unless key was invalidated after gen was read.
func (r *CachedCartRepository) fill(ctx context.Context, key, gen string, v any) {
	if gen == "" {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		r.logger.WarnContext(ctx, "marshal cart cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}

	stored, err := fillScript.Run(ctx, r.client,
		[]string{key, key + genSuffix},
		data, gen, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		r.logger.WarnContext(ctx, "cart cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if stored == 0 {
		r.logger.DebugContext(ctx, "cart cache fill skipped, key invalidated during read",
			slog.String("key", key),
		)
	}
}

// invalidate bumps the generation of each key and deletes it.
func (r *CachedCartRepository) invalidate(ctx context.Context, keys ...string) {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, key+genSuffix)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		r.logger.WarnContext(ctx, "cart cache invalidation failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}
