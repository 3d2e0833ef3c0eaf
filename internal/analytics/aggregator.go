// Package analytics keeps live per-session counters in Redis and flushes
// a session summary to ClickHouse when the session ends. Redis is
// optional: a nil aggregator is inert.
package analytics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/storage"
)

// Aggregator accumulates counters in memory and pushes them to Redis on
// a short cadence, so a 120 Hz sample stream does not turn into 120
// Redis calls per second.
type Aggregator struct {
	ch        *storage.ClickHouse
	redis     *redis.Client
	sessionID string
	startedAt time.Time

	samples    atomic.Uint64
	dropped    atomic.Uint64
	queueDrops atomic.Uint64
	fixations  atomic.Uint32
	decisions  atomic.Uint32
	degradedMs atomic.Uint64
	windows    atomic.Uint32

	done chan struct{}
}

func NewAggregator(ch *storage.ClickHouse, redisCfg config.RedisConfig, sessionID string) *Aggregator {
	var rdb *redis.Client
	if redisCfg.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, live session counters disabled")
			rdb = nil
		}
	}

	a := &Aggregator{
		ch:        ch,
		redis:     rdb,
		sessionID: sessionID,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go a.pushLoop()
	return a
}

func (a *Aggregator) CountSample(dropped bool) {
	if a == nil {
		return
	}
	a.samples.Add(1)
	if dropped {
		a.dropped.Add(1)
	}
}

func (a *Aggregator) CountQueueDrop() {
	if a == nil {
		return
	}
	a.queueDrops.Add(1)
}

func (a *Aggregator) CountFixation() {
	if a == nil {
		return
	}
	a.fixations.Add(1)
}

func (a *Aggregator) CountDecision() {
	if a == nil {
		return
	}
	a.decisions.Add(1)
}

func (a *Aggregator) CountDegraded(d time.Duration) {
	if a == nil {
		return
	}
	a.degradedMs.Add(uint64(d.Milliseconds()))
}

func (a *Aggregator) pushLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.push(context.Background())
		}
	}
}

// push mirrors the in-memory counters into a Redis hash with a TTL, for
// live dashboards watching the session.
func (a *Aggregator) push(ctx context.Context) {
	if a.redis == nil {
		return
	}

	key := "gaze:session:" + a.sessionID

	pipe := a.redis.Pipeline()
	pipe.HSet(ctx, key,
		"started_at", a.startedAt.UnixMilli(),
		"updated_at", time.Now().UnixMilli(),
		"samples_total", a.samples.Load(),
		"samples_dropped", a.dropped.Load(),
		"queue_drops", a.queueDrops.Load(),
		"fixations", a.fixations.Load(),
		"decisions", a.decisions.Load(),
		"degraded_ms", a.degradedMs.Load(),
	)
	pipe.Expire(ctx, key, time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("session_id", a.sessionID).Msg("Failed to update session counters in Redis")
	}
}

// FlushSession writes the final session summary to ClickHouse and drops
// the Redis key.
func (a *Aggregator) FlushSession(ctx context.Context) error {
	if a == nil {
		return nil
	}

	endedAt := time.Now()
	row := storage.SessionRow{
		SessionID:        a.sessionID,
		StartedAt:        a.startedAt,
		EndedAt:          endedAt,
		DurationMs:       uint64(endedAt.Sub(a.startedAt).Milliseconds()),
		SamplesTotal:     a.samples.Load(),
		SamplesDropped:   a.dropped.Load(),
		QueueDrops:       a.queueDrops.Load(),
		Fixations:        a.fixations.Load(),
		Decisions:        a.decisions.Load(),
		DegradedSeconds:  uint32(a.degradedMs.Load() / 1000),
		CompletedWindows: a.windows.Load(),
	}

	if a.ch != nil {
		if err := a.ch.UpsertSession(ctx, row); err != nil {
			return err
		}
	}

	if a.redis != nil {
		a.redis.Del(ctx, "gaze:session:"+a.sessionID)
	}

	log.Info().
		Str("session_id", a.sessionID).
		Uint64("samples", row.SamplesTotal).
		Uint32("fixations", row.Fixations).
		Uint32("decisions", row.Decisions).
		Msg("Session summary flushed")
	return nil
}

// SetCompletedWindows records the scroll controller's final window count.
func (a *Aggregator) SetCompletedWindows(n int) {
	if a == nil || n < 0 {
		return
	}
	a.windows.Store(uint32(n))
}

// Close stops the push loop and the Redis client.
func (a *Aggregator) Close() error {
	if a == nil {
		return nil
	}
	close(a.done)
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
