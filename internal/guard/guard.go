package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authgate/internal/shared/config"
	"authgate/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrIPBlocked means the address sits on the permanent blocklist.
	ErrIPBlocked = errors.New("ip address is blocked")
)

const (
	blocklistKeyPrefix = "authgate:blocked_ip:"
	attemptsKeyPrefix  = "authgate:login_attempts:"
)

// Guard tracks failed sign-ins per client IP in redis and promotes
// repeat offenders to a permanent Postgres blocklist. Blocklist lookups
// are cached in redis so the hot path rarely touches the database.
type Guard struct {
	db     *gorm.DB
	redis  *redis.Client
	cfg    config.GuardConfig
	logger *logger.Logger
}

func New(db *gorm.DB, rdb *redis.Client, cfg config.GuardConfig) *Guard {
	return &Guard{
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		logger: logger.GetDefault(),
	}
}

// Check returns ErrIPBlocked when the address is on the blocklist. Call it
// before forwarding credentials upstream.
func (g *Guard) Check(ctx context.Context, ip string) error {
	if !g.cfg.Enabled {
		return nil
	}

	blocked, err := g.isBlocked(ctx, ip)
	if err != nil {
		return err
	}
	if blocked {
		return ErrIPBlocked
	}
	return nil
}

// RecordFailure counts a failed sign-in for the address. Crossing the
// attempt threshold within the window blocks the address permanently and
// returns ErrIPBlocked.
func (g *Guard) RecordFailure(ctx context.Context, ip string) error {
	if !g.cfg.Enabled {
		return nil
	}

	key := attemptsKeyPrefix + ip
	attempts, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}
	if attempts == 1 {
		// First failure starts the window
		g.redis.Expire(ctx, key, g.cfg.AttemptWindow)
	}

	if attempts >= int64(g.cfg.MaxAttempts) {
		if err := g.block(ctx, ip, attempts); err != nil {
			return err
		}
		return ErrIPBlocked
	}
	return nil
}

// Reset clears the attempt counter after a successful sign-in.
func (g *Guard) Reset(ctx context.Context, ip string) {
	if !g.cfg.Enabled {
		return
	}
	g.redis.Del(ctx, attemptsKeyPrefix+ip)
}

func (g *Guard) isBlocked(ctx context.Context, ip string) (bool, error) {
	cacheKey := blocklistKeyPrefix + ip

	if cached, err := g.redis.Get(ctx, cacheKey).Result(); err == nil {
		return cached == "1", nil
	}

	var count int64
	if err := g.db.WithContext(ctx).Model(&BlockedIP{}).
		Where("blocked_ip = ? AND is_blocked = ?", ip, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("blocklist lookup: %w", err)
	}

	cached := "0"
	if count > 0 {
		cached = "1"
	}
	g.redis.Set(ctx, cacheKey, cached, g.cfg.BlocklistCache)

	return count > 0, nil
}

func (g *Guard) block(ctx context.Context, ip string, attempts int64) error {
	record := BlockedIP{
		Address:   ip,
		IsBlocked: true,
		Reason:    fmt.Sprintf("%d failed sign-in attempts", attempts),
	}

	if err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocked_ip"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_blocked", "reason", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("persist block: %w", err)
	}

	g.redis.Set(ctx, blocklistKeyPrefix+ip, "1", g.cfg.BlocklistCache)
	g.redis.Del(ctx, attemptsKeyPrefix+ip)

	g.logger.LogIPBlocked(ctx, ip, int(attempts))
	return nil
}

// Unblock removes an address from the blocklist (operator action).
func (g *Guard) Unblock(ctx context.Context, ip string) error {
	if err := g.db.WithContext(ctx).Model(&BlockedIP{}).
		Where("blocked_ip = ?", ip).
		Updates(map[string]interface{}{"is_blocked": false, "updated_at": time.Now().UTC()}).Error; err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	g.redis.Del(ctx, blocklistKeyPrefix+ip)
	return nil
}
