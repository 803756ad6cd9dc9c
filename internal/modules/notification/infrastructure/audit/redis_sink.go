package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/application"
	gobreaker "github.com/sony/gobreaker/v2"
)

var ErrQueueFull = errors.New("audit queue full")

// StreamAdder is the slice of the redis client the sink needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type RedisStreamConfig struct {
	Stream       string
	MaxLen       int64
	Buffer       int
	WriteTimeout time.Duration
	// FailureThreshold consecutive failures open the breaker for BreakerTimeout.
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// RedisStreamSink appends audit events to a Redis stream from a background
// worker. Record only enqueues; when the queue is full the event is dropped.
type RedisStreamSink struct {
	client  StreamAdder
	cfg     RedisStreamConfig
	queue   chan application.AuditEvent
	breaker *gobreaker.CircuitBreaker[string]
	logger  zerolog.Logger
	dropped atomic.Int64
	written atomic.Int64
}

func NewRedisStreamSink(client StreamAdder, cfg RedisStreamConfig, logger zerolog.Logger) *RedisStreamSink {
	if cfg.Stream == "" {
		cfg.Stream = "notifications:audit"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	s := &RedisStreamSink{
		client: client,
		cfg:    cfg,
		queue:  make(chan application.AuditEvent, cfg.Buffer),
		logger: logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "audit-redis-stream",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("audit sink breaker state changed")
		},
	})
	return s
}

func (s *RedisStreamSink) Record(_ context.Context, evt application.AuditEvent) {
	select {
	case s.queue <- evt:
	default:
		s.dropped.Add(1)
		s.logger.Warn().Err(ErrQueueFull).Str("action", evt.Action).Msg("audit event dropped")
	}
}

// Serve drains the queue until ctx is cancelled. It satisfies suture.Service.
func (s *RedisStreamSink) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case evt := <-s.queue:
			s.write(ctx, evt)
		}
	}
}

func (s *RedisStreamSink) String() string { return "audit-redis-stream" }

// flush writes whatever is still queued, bounded by one write timeout.
func (s *RedisStreamSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	for {
		select {
		case evt := <-s.queue:
			s.write(ctx, evt)
		default:
			return
		}
	}
}

func (s *RedisStreamSink) write(ctx context.Context, evt application.AuditEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn().Err(err).Str("action", evt.Action).Msg("audit event not encodable")
		return
	}

	_, err = s.breaker.Execute(func() (string, error) {
		wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
		return s.client.XAdd(wctx, &redis.XAddArgs{
			Stream: s.cfg.Stream,
			MaxLen: s.cfg.MaxLen,
			Approx: s.cfg.MaxLen > 0,
			Values: map[string]any{
				"action":  evt.Action,
				"payload": string(payload),
			},
		}).Result()
	})
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn().Err(fmt.Errorf("xadd %s: %w", s.cfg.Stream, err)).Str("action", evt.Action).Msg("audit write failed")
		return
	}
	s.written.Add(1)
}

// Written and Dropped report delivery counters.
func (s *RedisStreamSink) Written() int64 { return s.written.Load() }
func (s *RedisStreamSink) Dropped() int64 { return s.dropped.Load() }

func (s *RedisStreamSink) BreakerState() string { return s.breaker.State().String() }
