package nodehealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duskgate/portcullis/internal/ring"
)

// Slowdown is an optional, best-effort cross-process error signal layered
// over the mandatory process-local suppression Table. A single front-door
// process's Table only sees the errors it personally observed; Slowdown
// shares a recent-error count for a node across every front-door process
// via Redis INCR+EXPIRE, the same window-counter shape as the teacher's
// RateLimiter, so a node failing against one process is seen sooner by
// its siblings. It never overrides Table.IsSuppressed — spec §5's "all
// node health information is process-local" binds the authoritative
// suppression decision — it only feeds an early warning a caller may
// choose to weight in node ordering.
type Slowdown struct {
	redis  *redis.Client
	window time.Duration
}

// NewSlowdown builds a Slowdown signal backed by rdb. rdb may be nil, in
// which case every method is a no-op — the shared signal is strictly
// optional.
func NewSlowdown(rdb *redis.Client, window time.Duration) *Slowdown {
	return &Slowdown{redis: rdb, window: window}
}

func slowdownKey(n ring.Node) string {
	return fmt.Sprintf("portcullis:slowdown:%s", n.Key())
}

// Observe records an error against n, visible to every process sharing
// rdb within the configured window.
func (s *Slowdown) Observe(ctx context.Context, n ring.Node) error {
	if s.redis == nil {
		return nil
	}
	key := slowdownKey(n)
	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording slowdown signal: %w", err)
	}
	if incr.Val() == 1 {
		s.redis.Expire(ctx, key, s.window)
	}
	return nil
}

// Count returns the number of errors any process has observed against n
// within the window, or 0 if rdb is nil or nothing has been observed.
func (s *Slowdown) Count(ctx context.Context, n ring.Node) (int, error) {
	if s.redis == nil {
		return 0, nil
	}
	count, err := s.redis.Get(ctx, slowdownKey(n)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading slowdown signal: %w", err)
	}
	return count, nil
}
