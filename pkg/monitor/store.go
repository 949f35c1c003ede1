package monitor

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

const (
	snapshotKey  = "dbpool:metrics"
	alertIdxKey  = "dbpool:alerts"
	alertDataKey = "dbpool:alerts:data"
)

// Snapshot is one persisted metrics sample.
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Metrics   pool.PoolMetrics `json:"metrics"`
}

// MetricsStore persists snapshots and alerts to redis, score-keyed by
// unix-milli timestamp. Every call is best-effort: failures are logged
// and the store flips to unavailable rather than propagating errors.
// The client is built on Connect and discarded on Close, so a
// Close/Connect cycle yields a working store again.
type MetricsStore struct {
	mu     sync.Mutex
	client *redis.Client
	opts   *redis.Options
	logger *zap.Logger

	available atomic.Bool
}

func NewMetricsStore(addr, password string, db int, logger *zap.Logger) *MetricsStore {
	return &MetricsStore{
		opts:   &redis.Options{Addr: addr, Password: password, DB: db},
		logger: logger,
	}
}

// Connect opens a fresh client and pings it once. Failure is non-fatal:
// monitoring degrades to in-memory-only alerting.
func (s *MetricsStore) Connect(ctx context.Context) bool {
	s.mu.Lock()
	if s.client != nil {
		_ = s.client.Close()
	}
	s.client = redis.NewClient(s.opts)
	client := s.client
	s.mu.Unlock()

	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("metrics store unavailable, persistence disabled", zap.Error(err))
		s.available.Store(false)
		return false
	}
	s.available.Store(true)
	s.logger.Info("metrics store connected")
	return true
}

func (s *MetricsStore) Available() bool {
	return s.available.Load()
}

// conn yields the live client, or nil when the store is unavailable or
// closed. Every operation goes through it instead of checking
// availability at each site.
func (s *MetricsStore) conn() *redis.Client {
	if !s.available.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *MetricsStore) Close() {
	s.available.Store(false)
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		s.logger.Warn("metrics store close failed", zap.Error(err))
	}
}

func (s *MetricsStore) fail(op string, err error) {
	s.logger.Warn("metrics store operation failed", zap.String("op", op), zap.Error(err))
}

// AddSnapshot persists one sample and refreshes the retention TTL.
func (s *MetricsStore) AddSnapshot(ctx context.Context, m pool.PoolMetrics, retention time.Duration) {
	client := s.conn()
	if client == nil {
		return
	}
	now := time.Now()
	data, err := json.Marshal(Snapshot{Timestamp: now, Metrics: m})
	if err != nil {
		s.fail("snapshot marshal", err)
		return
	}
	if err := client.ZAdd(ctx, snapshotKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: string(data),
	}).Err(); err != nil {
		s.fail("snapshot zadd", err)
		return
	}
	if err := client.Expire(ctx, snapshotKey, retention).Err(); err != nil {
		s.fail("snapshot expire", err)
	}
}

// SnapshotsSince returns samples newer than since, oldest first.
func (s *MetricsStore) SnapshotsSince(ctx context.Context, since time.Time) []Snapshot {
	client := s.conn()
	if client == nil {
		return nil
	}
	raw, err := client.ZRangeByScore(ctx, snapshotKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		s.fail("snapshot range", err)
		return nil
	}
	out := make([]Snapshot, 0, len(raw))
	for _, r := range raw {
		var snap Snapshot
		if err := json.Unmarshal([]byte(r), &snap); err != nil {
			s.fail("snapshot unmarshal", err)
			continue
		}
		out = append(out, snap)
	}
	return out
}

// SaveAlert upserts an alert body and indexes it by creation time.
// Resolution updates overwrite the body in place.
func (s *MetricsStore) SaveAlert(ctx context.Context, a Alert) {
	client := s.conn()
	if client == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		s.fail("alert marshal", err)
		return
	}
	if err := client.HSet(ctx, alertDataKey, a.ID, string(data)).Err(); err != nil {
		s.fail("alert hset", err)
		return
	}
	if err := client.ZAdd(ctx, alertIdxKey, redis.Z{
		Score:  float64(a.Timestamp.UnixMilli()),
		Member: a.ID,
	}).Err(); err != nil {
		s.fail("alert zadd", err)
	}
}

// AlertsSince returns alerts created after since, oldest first. An
// empty reachable store yields an empty non-nil slice; nil means the
// store could not answer.
func (s *MetricsStore) AlertsSince(ctx context.Context, since time.Time) []Alert {
	client := s.conn()
	if client == nil {
		return nil
	}
	ids, err := client.ZRangeByScore(ctx, alertIdxKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		s.fail("alert range", err)
		return nil
	}
	out := make([]Alert, 0, len(ids))
	if len(ids) == 0 {
		return out
	}
	bodies, err := client.HMGet(ctx, alertDataKey, ids...).Result()
	if err != nil {
		s.fail("alert hmget", err)
		return nil
	}
	for _, b := range bodies {
		str, ok := b.(string)
		if !ok {
			continue
		}
		var a Alert
		if err := json.Unmarshal([]byte(str), &a); err != nil {
			s.fail("alert unmarshal", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

// PruneSnapshots drops samples older than before.
func (s *MetricsStore) PruneSnapshots(ctx context.Context, before time.Time) {
	client := s.conn()
	if client == nil {
		return
	}
	max := strconv.FormatInt(before.UnixMilli(), 10)
	if err := client.ZRemRangeByScore(ctx, snapshotKey, "-inf", max).Err(); err != nil {
		s.fail("snapshot prune", err)
	}
}

// PruneAlerts drops alerts older than before, index and bodies both.
func (s *MetricsStore) PruneAlerts(ctx context.Context, before time.Time) {
	client := s.conn()
	if client == nil {
		return
	}
	max := strconv.FormatInt(before.UnixMilli(), 10)
	ids, err := client.ZRangeByScore(ctx, alertIdxKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		s.fail("alert prune range", err)
		return
	}
	if len(ids) > 0 {
		if err := client.HDel(ctx, alertDataKey, ids...).Err(); err != nil {
			s.fail("alert prune hdel", err)
		}
	}
	if err := client.ZRemRangeByScore(ctx, alertIdxKey, "-inf", max).Err(); err != nil {
		s.fail("alert prune zrem", err)
	}
}
