package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const codeTTL = 5 * time.Minute

// Store keeps short-lived email verification codes.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func codeKey(email string) string {
	return "verify_code:" + email
}

func (s *Store) SetVerificationCode(ctx context.Context, email, code string) error {
	return s.rdb.Set(ctx, codeKey(email), code, codeTTL).Err()
}

// GetVerificationCode returns redis.Nil when no code is pending.
func (s *Store) GetVerificationCode(ctx context.Context, email string) (string, error) {
	return s.rdb.Get(ctx, codeKey(email)).Result()
}

func (s *Store) DeleteVerificationCode(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, codeKey(email)).Err()
}
