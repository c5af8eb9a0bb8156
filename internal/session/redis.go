package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

const redisKeyPrefix = "session:"

// RedisStore keeps sessions in Redis so the assistant can be restarted (or
// scaled out) without dropping live conversations. Records are JSON, expiry
// rides on the key TTL, and Save uses WATCH/MULTI to reject stale writes.
type RedisStore struct {
	client      *redis.Client
	initialNode string
	timeout     time.Duration
	now         func() time.Time
	logger      *logging.Logger
}

func NewRedisStore(client *redis.Client, initialNode string, timeout time.Duration, logger *logging.Logger) *RedisStore {
	return &RedisStore{
		client:      client,
		initialNode: initialNode,
		timeout:     timeout,
		now:         time.Now,
		logger:      logger,
	}
}

func redisKey(key Key) string {
	return redisKeyPrefix + key.String()
}

func (r *RedisStore) GetOrCreate(ctx context.Context, key Key) (*Session, error) {
	fresh := New(key, r.initialNode, r.now())
	payload, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	// SetNX decides the creation winner when several turns race on a new key.
	created, err := r.client.SetNX(ctx, redisKey(key), payload, r.timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if created {
		return fresh, nil
	}

	s, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// The existing session expired between SetNX and GET; try once more.
		return r.GetOrCreate(ctx, key)
	}
	return s, err
}

func (r *RedisStore) Get(ctx context.Context, key Key) (*Session, error) {
	payload, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	key := redisKey(s.Key)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var stored Session
		if err := json.Unmarshal(payload, &stored); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		if stored.Version != s.Version {
			return ErrStaleSession
		}

		committed := s.Clone()
		committed.Version++
		committed.LastActivityAt = r.now()
		out, err := json.Marshal(committed)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.timeout)
			return nil
		})
		if err != nil {
			return err
		}
		s.Version = committed.Version
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Key changed under us between GET and EXEC.
		return ErrStaleSession
	}
	return err
}

func (r *RedisStore) Touch(ctx context.Context, key Key) error {
	ok, err := r.client.Expire(ctx, redisKey(key), r.timeout).Result()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Expire(ctx context.Context, key Key) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

func (r *RedisStore) Reset(ctx context.Context, key Key) (*Session, error) {
	rkey := redisKey(key)
	var out *Session
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, rkey).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var s Session
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		s.CurrentNode = r.initialNode
		s.Context = make(map[string]string)
		s.History = nil
		s.Version++
		s.LastActivityAt = r.now()
		reset, err := json.Marshal(&s)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, reset, r.timeout)
			return nil
		})
		if err != nil {
			return err
		}
		out = &s
		return nil
	}, rkey)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrStaleSession
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
