package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 4

// RedisSessionStore persists reset sessions as versioned binary blobs with a
// TTL matching the session deadline. Keys carry a SHA-256 of the token so a
// keyspace dump does not leak live tokens.
type RedisSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(redisClient redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "rrs"
	}
	return &RedisSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisSessionStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

func (s *RedisSessionStore) Save(ctx context.Context, session *ResetSession, now time.Time) error {
	if session == nil || session.Token == "" {
		return ErrSessionNotFound
	}

	encoded, err := encodeResetSession(session)
	if err != nil {
		return err
	}

	ttl := session.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return ErrSessionNotFound
	}

	if err := s.redis.Set(ctx, s.key(session.Token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string, now time.Time) (*ResetSession, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	session, err := decodeResetSession(token, data)
	if err != nil {
		return nil, err
	}
	if session.Expired(now) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *RedisSessionStore) Update(
	ctx context.Context,
	token string,
	now time.Time,
	fn func(*ResetSession) error,
) (*ResetSession, error) {
	key := s.key(token)

	for i := 0; i < maxTxRetries; i++ {
		var (
			updated *ResetSession
			fnErr   error
		)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			session, err := s.loadLive(ctx, tx, key, token, now)
			if err != nil {
				return err
			}

			if fnErr = fn(session); fnErr != nil {
				return fnErr
			}
			session.Token = token

			ttl := session.ExpiresAt.Sub(now)
			if ttl <= 0 {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ErrSessionNotFound
			}

			encoded, err := encodeResetSession(session)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			updated = session
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if fnErr != nil && err == fnErr {
				return nil, fnErr
			}
			return nil, classifyRedisError(err)
		}
		return updated, nil
	}

	return nil, ErrStoreContention
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string, now time.Time) (*ResetSession, error) {
	key := s.key(token)

	for i := 0; i < maxTxRetries; i++ {
		var removed *ResetSession

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			session, err := s.loadLive(ctx, tx, key, token, now)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			removed = session
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, classifyRedisError(err)
		}
		return removed, nil
	}

	return nil, ErrStoreContention
}

// SweepExpired is a no-op; Redis TTLs evict sessions on their own.
func (s *RedisSessionStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisSessionStore) loadLive(
	ctx context.Context,
	tx *redis.Tx,
	key, token string,
	now time.Time,
) (*ResetSession, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	session, err := decodeResetSession(token, data)
	if err != nil {
		return nil, err
	}

	if session.Expired(now) {
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func classifyRedisError(err error) error {
	switch {
	case errors.Is(err, redis.Nil), errors.Is(err, ErrSessionNotFound):
		return ErrSessionNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
