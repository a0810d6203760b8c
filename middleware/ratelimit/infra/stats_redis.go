package infra

import (
	"context"
	"strings"
	"time"

	"risk-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// layouts das séries temporais aceitas por WithStatsBucket.
var statsBuckets = map[string]string{
	"minute": "200601021504",
	"hour":   "2006010215",
}

// RedisStatsStore agrega decisões em hashes do Redis, compartilhados entre
// instâncias do gateway:
//
//	<prefix>:total              allowed|denied (não expira)
//	<prefix>:class              <classe>:allowed|denied
//	<prefix>:route              <METHOD /path>:allowed|denied
//	<prefix>:<bucket>:<instante> allowed|denied (expira em ttl)
//	<prefix>:key:<classe>:<id>  allowed|denied (opcional, expira em ttl)
type RedisStatsStore struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket escolhe a série temporal: "minute" (padrão), "hour" ou "none".
// Valor desconhecido desliga a série.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithStatsTrackKeys liga o contador por cliente e classe.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	outcome := ev.Outcome()

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.key("total"), outcome, 1)

		if ev.Key.Class != "" {
			pipe.HIncrBy(ctx, s.key("class"), string(ev.Key.Class)+":"+outcome, 1)
		}
		if route := ev.Route(); route != "" {
			pipe.HIncrBy(ctx, s.key("route"), route+":"+outcome, 1)
		}
		if layout, ok := statsBuckets[s.bucket]; ok {
			s.incrExpiring(ctx, pipe, s.key(s.bucket, ev.At.UTC().Format(layout)), outcome)
		}
		if s.trackKeys && strings.TrimSpace(ev.Key.Identity) != "" {
			s.incrExpiring(ctx, pipe, s.key("key", ev.Key.String()), outcome)
		}
		return nil
	})
	return err
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}
