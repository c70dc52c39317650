package itinerary

import (
	"context"
	"time"

	"backend-tripmark/internal/logging"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix       = "tripmark:itinerary:"
	redisIndexKey        = "tripmark:itineraries"
	defaultMaxTxAttempts = 5
)

// RedisRepository keeps each itinerary as a JSON document and an index sorted
// by creation time so listing order is stable.
type RedisRepository struct {
	client        *redis.Client
	logger        *zap.Logger
	maxTxAttempts int
	now           func() time.Time
}

type RedisOption func(*RedisRepository)

// WithMaxTxAttempts bounds how often a conflicting transaction is re-run.
func WithMaxTxAttempts(n int) RedisOption {
	return func(r *RedisRepository) {
		if n > 0 {
			r.maxTxAttempts = n
		}
	}
}

func NewRedisRepository(client *redis.Client, logger *zap.Logger, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{
		client:        client,
		logger:        logging.OrNop(logger),
		maxTxAttempts: defaultMaxTxAttempts,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func itineraryKey(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisRepository) Get(ctx context.Context, id string) (Itinerary, error) {
	data, err := r.client.Get(ctx, itineraryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Itinerary{}, ErrNotFound
	}
	if err != nil {
		return Itinerary{}, errors.Wrap(err, "get itinerary")
	}
	return r.decode(data)
}

func (r *RedisRepository) List(ctx context.Context, filter ListFilter) ([]Itinerary, error) {
	ids, err := r.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read itinerary index")
	}
	items := []Itinerary{}
	if len(ids) == 0 {
		return items, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itineraryKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load itineraries")
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without a document
			continue
		}
		it, err := r.decode([]byte(raw))
		if err != nil {
			r.logger.Warn("skipping malformed itinerary", zap.String("itinerary_id", ids[i]), zap.Error(err))
			continue
		}
		if filter.OwnerID != "" && it.OwnerID != filter.OwnerID {
			continue
		}
		items = append(items, it)
		if filter.Limit > 0 && len(items) == filter.Limit {
			break
		}
	}
	return items, nil
}

func (r *RedisRepository) Set(ctx context.Context, it Itinerary) (Itinerary, error) {
	now := r.now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	data, err := encodeDocument(it)
	if err != nil {
		return Itinerary{}, errors.Wrap(err, "encode itinerary")
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, itineraryKey(it.ID), data, 0)
		p.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(it.CreatedAt.UnixMilli()), Member: it.ID})
		return nil
	})
	if err != nil {
		return Itinerary{}, errors.Wrap(err, "save itinerary")
	}
	return it, nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, itineraryKey(id))
		p.ZRem(ctx, redisIndexKey, id)
		return nil
	})
	return errors.Wrap(err, "delete itinerary")
}

// RunTransaction uses WATCH/MULTI/EXEC. When another writer touches the
// document between the read and the EXEC, fn runs again on the fresh value,
// at most maxTxAttempts times in total.
func (r *RedisRepository) RunTransaction(ctx context.Context, id string, fn func(*Itinerary) error) (Itinerary, error) {
	key := itineraryKey(id)
	var out Itinerary

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "read itinerary")
		}
		it, err := r.decode(data)
		if err != nil {
			return err
		}
		if err := fn(&it); err != nil {
			return err
		}
		it.ID = id
		it.UpdatedAt = r.now()

		payload, err := encodeDocument(it)
		if err != nil {
			return errors.Wrap(err, "encode itinerary")
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = it
		return nil
	}

	for attempt := 1; attempt <= r.maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("itinerary transaction conflict", zap.String("itinerary_id", id), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Itinerary{}, err
		}
		return out, nil
	}
	return Itinerary{}, errors.Wrapf(ErrConflict, "gave up after %d attempts", r.maxTxAttempts)
}

func (r *RedisRepository) decode(data []byte) (Itinerary, error) {
	it, defaulted, err := decodeDocument(data)
	if err != nil {
		return Itinerary{}, err
	}
	if defaulted {
		r.logger.Warn("itinerary document had unreadable fields, defaults applied", zap.String("itinerary_id", it.ID))
	}
	return it, nil
}
