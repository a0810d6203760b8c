package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"risk-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ARGV: 1 cutoff exclusivo ("(<micros>"), 2 now (micros), 3 quota, 4 member, 5 ttl ms
var slidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[3]) then
  return {0, count}
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {1, count + 1}
`)

// RedisWindowStore guarda a janela deslizante num sorted set por chave
// (score = timestamp em micro-segundos), permitindo várias instâncias do
// gateway compartilharem as cotas. O script Lua torna evict/contagem/append
// atômico no servidor.
//
// Se o Redis falhar, a decisão cai no Fallback em memória.
type RedisWindowStore struct {
	rdb      *redis.Client
	prefix   string
	timeout  time.Duration
	fallback domain.WindowStore
	logger   *slog.Logger
	logEvery rate.Sometimes
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithWindowTimeout(d time.Duration) RedisWindowOption {
	return func(s *RedisWindowStore) { s.timeout = d }
}

// WithFallback troca o store usado quando o Redis está indisponível.
// nil desliga o fallback (a requisição é admitida).
func WithFallback(fb domain.WindowStore) RedisWindowOption {
	return func(s *RedisWindowStore) { s.fallback = fb }
}

func WithWindowLogger(l *slog.Logger) RedisWindowOption {
	return func(s *RedisWindowStore) { s.logger = l }
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:      rdb,
		prefix:   "ratelimit:window",
		timeout:  250 * time.Millisecond,
		fallback: NewMemoryWindowStore(),
		logger:   slog.Default(),
		logEvery: rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit implementa domain.WindowStore.
func (s *RedisWindowStore) Admit(ctx context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.Admission, error) {
	if s.rdb == nil {
		return s.fallbackAdmit(ctx, key, rule, now, fmt.Errorf("redis client not configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cutoff := now.Add(-rule.Window).UnixMicro()
	res, err := slidingWindowScript.Run(callCtx, s.rdb, []string{s.redisKey(key)},
		"("+strconv.FormatInt(cutoff, 10),
		strconv.FormatInt(now.UnixMicro(), 10),
		rule.Quota,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
		rule.Window.Milliseconds(),
	).Result()
	if err != nil {
		return s.fallbackAdmit(ctx, key, rule, now, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return s.fallbackAdmit(ctx, key, rule, now, fmt.Errorf("unexpected script result %T", res))
	}
	admitted, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	return domain.Admission{Admitted: admitted == 1, Count: int(count)}, nil
}

func (s *RedisWindowStore) fallbackAdmit(ctx context.Context, key domain.Key, rule domain.Rule, now time.Time, cause error) (domain.Admission, error) {
	s.logEvery.Do(func() {
		s.logger.Warn("redis sliding window unavailable, using fallback", "error", cause)
	})
	if s.fallback == nil {
		return domain.Admission{Admitted: true}, nil
	}
	return s.fallback.Admit(ctx, key, rule, now)
}

func (s *RedisWindowStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key.Class) + ":" + key.Identity
}
