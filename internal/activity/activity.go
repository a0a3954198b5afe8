package activity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"billing-backend/internal/config"
)

// Tracker records per-tenant request activity in Redis. Tracking is strictly
// best-effort: every operation degrades to an in-process counter when Redis
// is missing or slow, and never surfaces an error to the request path.
type Tracker struct {
	client  *redis.Client
	ctx     context.Context
	timeout time.Duration

	fallback atomic.Int64
}

const counterTTL = 48 * time.Hour

// GlobalTracker is wired by InitTracker; it stays nil when Redis is not
// configured and callers must go through the package functions below.
var GlobalTracker *Tracker

// InitTracker connects to Redis using the shared REDIS_* environment.
func InitTracker() error {
	timeoutMS := config.GetEnvInt("ACTIVITY_REDIS_TIMEOUT_MS", 1500)
	if timeoutMS <= 0 {
		timeoutMS = 1500
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.GetEnv("REDIS_HOST", "localhost"), config.GetEnv("REDIS_PORT", "6379")),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetEnvInt("REDIS_DB", 0),
	})

	ctx := context.Background()
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	GlobalTracker = &Tracker{
		client:  rdb,
		ctx:     ctx,
		timeout: time.Duration(timeoutMS) * time.Millisecond,
	}
	log.Println("✅ Activity tracker initialized")
	return nil
}

func (t *Tracker) withTimeout() (context.Context, context.CancelFunc) {
	timeout := t.timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return context.WithTimeout(t.ctx, timeout)
}

func wrapRedisError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s redis operation timed out: %w", operation, err)
	}
	return fmt.Errorf("%s redis operation failed: %w", operation, err)
}

func dayKey(tenantID uint, day time.Time) string {
	return fmt.Sprintf("activity:tenant:%d:%s", tenantID, day.UTC().Format("2006-01-02"))
}

// Touch increments today's request counter for a tenant.
func Touch(tenantID uint) {
	if GlobalTracker == nil {
		return
	}
	GlobalTracker.Touch(tenantID)
}

func (t *Tracker) Touch(tenantID uint) {
	ctx, cancel := t.withTimeout()
	defer cancel()

	key := dayKey(tenantID, time.Now())
	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		t.fallback.Add(1)
		log.Printf("Activity tracking degraded: %v", wrapRedisError("touch", err))
	}
}

// CountToday returns today's request count for a tenant, zero on any error.
func (t *Tracker) CountToday(tenantID uint) int64 {
	ctx, cancel := t.withTimeout()
	defer cancel()

	count, err := t.client.Get(ctx, dayKey(tenantID, time.Now())).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("Activity read failed: %v", wrapRedisError("count", err))
		}
		return 0
	}
	return count
}

// Connected reports whether the tracker has a live Redis connection.
func Connected() bool {
	if GlobalTracker == nil {
		return false
	}
	ctx, cancel := GlobalTracker.withTimeout()
	defer cancel()
	return GlobalTracker.client.Ping(ctx).Err() == nil
}

// DroppedWrites returns the number of touches that fell back to the
// in-process counter because Redis was unavailable.
func DroppedWrites() int64 {
	if GlobalTracker == nil {
		return 0
	}
	return GlobalTracker.fallback.Load()
}
