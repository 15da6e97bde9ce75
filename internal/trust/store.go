package trust

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const deviceKeyPrefix = "authgate:trusted_device:"

// Store keeps an edge-side record of trusted-device ids so tampered
// cookies can be stripped before a login request is forwarded upstream.
// Only a bcrypt hash of the device id is cached; the cache leaking never
// yields a usable cookie value. The upstream remains the authority on
// device trust.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		redis: rdb,
		ttl:   ttl,
	}
}

// Remember caches the device id handed back after a successful OTP
// verification, keyed by the account it belongs to.
func (s *Store) Remember(ctx context.Context, email, deviceID string) error {
	hash, err := hashDeviceID(deviceID)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, deviceKeyPrefix+email, hash, s.ttl).Err()
}

// Verify reports whether the presented device id matches the cached record
// for the account. A missing record is not a failure: the cookie is simply
// forwarded and the upstream decides.
func (s *Store) Verify(ctx context.Context, email, deviceID string) (known, valid bool) {
	hash, err := s.redis.Get(ctx, deviceKeyPrefix+email).Result()
	if err != nil {
		return false, false
	}
	return true, matchDeviceID(hash, deviceID)
}

// Forget drops the cached record, e.g. on forced sign-out.
func (s *Store) Forget(ctx context.Context, email string) {
	s.redis.Del(ctx, deviceKeyPrefix+email)
}

func hashDeviceID(deviceID string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(deviceID), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func matchDeviceID(hash, deviceID string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(deviceID)) == nil
}
