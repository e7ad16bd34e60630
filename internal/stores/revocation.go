package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRevocationRedisUnavailable = errors.New("revocation redis unavailable")

// RevocationStore is a denylist of token ids. Entries live until the token
// they name would have expired anyway.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRevocationStore(redisClient redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "sa:revoked"
	}
	return &RevocationStore{redis: redisClient, prefix: prefix}
}

func (s *RevocationStore) key(jti string) string {
	return s.prefix + ":" + jti
}

// Revoke denylists jti for ttl. It reports true when this call added the
// entry and false when jti was already revoked, so that two concurrent
// rotations of one refresh token have exactly one winner.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, errors.New("empty token id")
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	added, err := s.redis.SetNX(ctx, s.key(jti), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationRedisUnavailable, err)
	}
	return added, nil
}

// IsRevoked reports whether jti is on the denylist.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationRedisUnavailable, err)
	}
	return n > 0, nil
}
