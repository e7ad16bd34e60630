package stores

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPNotFound         = errors.New("otp not found")
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// verifyOTPLua checks a code hash against the record at KEYS[1].
// ARGV[1] = provided hash (hex)
// ARGV[2] = max attempts
// ARGV[3] = now (unix ms)
// ARGV[4] = "1" to delete the record on success, "0" to leave it
//
// Returns the stored hash on success, or an error reply of
// not_found, expired, attempts_exceeded or mismatch.
var verifyOTPLua = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'h')
if not stored then
  return {err='not_found'}
end

local expiresAt = tonumber(redis.call('HGET', KEYS[1], 'exp'))
if expiresAt == nil or tonumber(ARGV[3]) >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if stored ~= ARGV[1] then
  local attempts = redis.call('HINCRBY', KEYS[1], 'a', 1)
  if attempts >= tonumber(ARGV[2]) then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  return {err='mismatch'}
end

if ARGV[4] == '1' then
  redis.call('DEL', KEYS[1])
end
return stored
`)

// OTPStore keeps at most one live code per (purpose, email).
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "sa:otp"
	}
	return &OTPStore{redis: redisClient, prefix: prefix}
}

func (s *OTPStore) key(purpose, email string) string {
	return s.prefix + ":" + purpose + ":" + email
}

// Save replaces any previous record for (purpose, email).
func (s *OTPStore) Save(ctx context.Context, purpose, email string, codeHash [32]byte, ttl time.Duration, now time.Time) error {
	if ttl <= 0 {
		return errors.New("otp ttl must be > 0")
	}
	key := s.key(purpose, email)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"h", hex.EncodeToString(codeHash[:]),
			"exp", now.Add(ttl).UnixMilli(),
			"a", 0,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Consume verifies codeHash and deletes the record on success. Exactly one
// of several concurrent callers presenting the right code succeeds.
func (s *OTPStore) Consume(ctx context.Context, purpose, email string, codeHash [32]byte, maxAttempts int, now time.Time) error {
	return s.verify(ctx, purpose, email, codeHash, maxAttempts, now, true)
}

// Check verifies codeHash without consuming the record. Mismatches still
// count against maxAttempts.
func (s *OTPStore) Check(ctx context.Context, purpose, email string, codeHash [32]byte, maxAttempts int, now time.Time) error {
	return s.verify(ctx, purpose, email, codeHash, maxAttempts, now, false)
}

// Delete drops the record for (purpose, email). Missing records are not an error.
func (s *OTPStore) Delete(ctx context.Context, purpose, email string) error {
	if err := s.redis.Del(ctx, s.key(purpose, email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

func (s *OTPStore) verify(ctx context.Context, purpose, email string, codeHash [32]byte, maxAttempts int, now time.Time, consume bool) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	provided := hex.EncodeToString(codeHash[:])
	mode := "0"
	if consume {
		mode = "1"
	}

	result, err := verifyOTPLua.Run(ctx, s.redis,
		[]string{s.key(purpose, email)},
		provided,
		maxAttempts,
		now.UnixMilli(),
		mode,
	).Result()
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "not_found"), strings.Contains(msg, "expired"):
			return ErrOTPNotFound
		case strings.Contains(msg, "attempts_exceeded"):
			return ErrOTPAttemptsExceeded
		case strings.Contains(msg, "mismatch"):
			return ErrOTPMismatch
		default:
			return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
	}

	stored, ok := result.(string)
	if !ok {
		return fmt.Errorf("%w: unexpected lua result type", ErrOTPRedisUnavailable)
	}
	// Lua string equality is not constant time.
	if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
		return ErrOTPMismatch
	}
	return nil
}
