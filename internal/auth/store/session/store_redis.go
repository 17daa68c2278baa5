package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"cloudgate/internal/auth/models"
	"cloudgate/pkg/platform/sentinel"
	"cloudgate/pkg/requestcontext"
)

var (
	redisOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloudgate_session_store_redis_duration_ms",
		Help:    "Latency of Redis session store operations in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
	}, []string{"op"})
)

const (
	sessionKeyPrefix = "sess:"
	flashKeyPrefix   = "sess:flash:"

	// DefaultTTL applies when the store is built without WithRedisTTL.
	DefaultTTL = 24 * time.Hour
)

// RedisStore persists sessions as JSON under sess:<id> with a sliding TTL.
// The flash slot lives under its own key and is consumed with GETDEL so a
// read and its clear are a single server-side operation.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL sets the expiry applied on every Save.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func observe(op string, start time.Time) {
	redisOpDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

// Get loads the session and slides its TTL, returning a fresh empty
// session on a miss.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	defer observe("get", time.Now())

	raw, err := s.client.GetEx(ctx, sessionKeyPrefix+id, s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewSession(id, requestcontext.Now(ctx)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w: %w", sentinel.ErrUnavailable, err)
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Save writes the session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, session *models.Session) error {
	defer observe("save", time.Now())

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// SetFlash writes the one-time slot for id.
func (s *RedisStore) SetFlash(ctx context.Context, id, code string) error {
	defer observe("set_flash", time.Now())

	if err := s.client.Set(ctx, flashKeyPrefix+id, code, s.ttl).Err(); err != nil {
		return fmt.Errorf("set flash: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// TakeFlash returns and deletes the one-time slot for id.
func (s *RedisStore) TakeFlash(ctx context.Context, id string) (string, error) {
	defer observe("take_flash", time.Now())

	code, err := s.client.GetDel(ctx, flashKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("take flash: %w: %w", sentinel.ErrUnavailable, err)
	}
	return code, nil
}
