package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists access tokens so restarts and sibling processes holding the
// same credentials can skip a token exchange.
type Store interface {
	Load(ctx context.Context, key string) (Token, bool, error)
	Save(ctx context.Context, key string, tok Token) error
	Delete(ctx context.Context, key string) error
}

// StoreKey derives the storage key for a credential set. Distinct client id /
// refresh token pairs never collide, and neither secret appears in the key.
func StoreKey(creds Credentials) string {
	sum := sha256.Sum256([]byte(creds.ClientID + ":" + creds.RefreshToken))
	return "ads:token:" + hex.EncodeToString(sum[:])
}

// RedisStore keeps tokens in Redis with a TTL matching their expiry.
type RedisStore struct {
	rdb *redis.Client
}

// RedisOptions builds client options from addr, which is either host:port or a
// redis:// (rediss://) URL. db and password apply only to host:port; a URL
// carries its own.
func RedisOptions(addr string, db int, password string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr, DB: db, Password: password}, nil
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Load(ctx context.Context, key string) (Token, bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("token store load: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, false, fmt.Errorf("token store decode: %w", err)
	}
	return tok, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, tok Token) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
