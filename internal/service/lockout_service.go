package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/pkg/cache"
)

type lockoutStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetFlag(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, keys ...string) error
}

// LockoutService throttles repeated failed logins per username and client IP.
type LockoutService struct {
	store   lockoutStore
	limit   int
	coolOff time.Duration
	logger  *zap.Logger
}

// NewLockoutService constructs the service. A nil store disables lockout.
func NewLockoutService(store lockoutStore, limit int, coolOff time.Duration, logger *zap.Logger) *LockoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 5
	}
	if coolOff <= 0 {
		coolOff = 30 * time.Minute
	}
	return &LockoutService{store: store, limit: limit, coolOff: coolOff, logger: logger}
}

func lockoutKeys(username, ip string) (failures, locked string) {
	id := strings.ToLower(strings.TrimSpace(username)) + "|" + ip
	return cache.Key("lockout", "failures", id), cache.Key("lockout", "locked", id)
}

// Locked reports whether the pair is locked and for how long.
func (s *LockoutService) Locked(ctx context.Context, username, ip string) (bool, time.Duration) {
	if s == nil || s.store == nil {
		return false, 0
	}
	_, lockedKey := lockoutKeys(username, ip)
	ttl, err := s.store.TTL(ctx, lockedKey)
	if err != nil {
		s.logger.Warn("lockout lookup failed", zap.Error(err))
		return false, 0
	}
	return ttl > 0, ttl
}

// RegisterFailure counts a failed attempt and locks the pair once the limit
// is reached. It returns true when this failure triggered the lock.
func (s *LockoutService) RegisterFailure(ctx context.Context, username, ip string) bool {
	if s == nil || s.store == nil {
		return false
	}
	failuresKey, lockedKey := lockoutKeys(username, ip)
	count, err := s.store.Increment(ctx, failuresKey, s.coolOff)
	if err != nil {
		s.logger.Warn("lockout counter failed", zap.Error(err))
		return false
	}
	if int(count) < s.limit {
		return false
	}
	if err := s.store.SetFlag(ctx, lockedKey, s.coolOff); err != nil {
		s.logger.Warn("lockout flag failed", zap.Error(err))
		return false
	}
	if err := s.store.Delete(ctx, failuresKey); err != nil {
		s.logger.Warn("lockout counter reset failed", zap.Error(err))
	}
	s.logger.Warn("login locked after repeated failures", zap.String("username", username), zap.String("ip", ip))
	return true
}

// Reset clears counters after a successful login.
func (s *LockoutService) Reset(ctx context.Context, username, ip string) {
	if s == nil || s.store == nil {
		return
	}
	failuresKey, lockedKey := lockoutKeys(username, ip)
	if err := s.store.Delete(ctx, failuresKey, lockedKey); err != nil {
		s.logger.Warn("lockout reset failed", zap.Error(err))
	}
}

// Settings returns the configured limit and cool-off for health reporting.
func (s *LockoutService) Settings() (int, time.Duration) {
	return s.limit, s.coolOff
}
