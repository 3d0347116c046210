package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// StreamConfig holds Redis Streams consumer settings.
type StreamConfig struct {
	URL       string
	Stream    string
	Group     string
	Consumer  string
	Block     time.Duration // XReadGroup block timeout (default: 5s)
	BatchSize int           // messages per read (default: 64)
}

// wireSignal is the JSON payload strategies publish to the stream.
type wireSignal struct {
	EventID     string    `json:"event_id"`
	Side        string    `json:"side"`
	Probability float64   `json:"probability"`
	Confidence  float64   `json:"confidence"`
	Strategy    string    `json:"strategy"`
	ClusterID   string    `json:"cluster_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// StreamSource consumes strategy signals from a Redis Stream via a consumer
// group and pushes the valid ones into the shared queue.
type StreamSource struct {
	cfg    StreamConfig
	rdb    *redis.Client
	queue  *Queue
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	received atomic.Int64
	invalid  atomic.Int64
}

// NewStreamSource creates a stream source from a Redis URL.
func NewStreamSource(cfg StreamConfig, queue *Queue, logger *slog.Logger) (*StreamSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 64
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &StreamSource{
		cfg:    cfg,
		rdb:    redis.NewClient(opts),
		queue:  queue,
		logger: logger,
	}, nil
}

// Name identifies the source.
func (s *StreamSource) Name() string { return "redis-stream" }

// Ping checks Redis connectivity for health reporting.
func (s *StreamSource) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Start verifies connectivity, ensures the consumer group exists, and begins
// consuming.
func (s *StreamSource) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	// Create the group at the stream tail; BUSYGROUP means it already exists.
	err := s.rdb.XGroupCreateMkStream(pingCtx, s.cfg.Stream, s.cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	s.wg.Add(1)
	go s.consumeLoop()

	s.logger.Info("signal stream source started",
		"stream", s.cfg.Stream,
		"group", s.cfg.Group,
		"consumer", s.cfg.Consumer,
	)
	return nil
}

// Stop shuts down the consumer and closes the Redis client.
func (s *StreamSource) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	s.logger.Info("signal stream source stopped",
		"received", s.received.Load(),
		"invalid", s.invalid.Load(),
	)
	return nil
}

// consumeLoop reads batches from the stream until the context is canceled.
func (s *StreamSource) consumeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		res, err := s.rdb.XReadGroup(s.ctx, &redis.XReadGroupArgs{
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Streams:  []string{s.cfg.Stream, ">"},
			Count:    int64(s.cfg.BatchSize),
			Block:    s.cfg.Block,
		}).Result()
		if err != nil {
			if err == redis.Nil || s.ctx.Err() != nil {
				continue
			}
			s.logger.Warn("signal stream read failed", "error", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				s.handle(msg)
				// Invalid payloads are acked too; redelivery cannot fix them.
				if err := s.rdb.XAck(s.ctx, s.cfg.Stream, s.cfg.Group, msg.ID).Err(); err != nil && s.ctx.Err() == nil {
					s.logger.Warn("signal ack failed", "id", msg.ID, "error", err)
				}
			}
		}
	}
}

// handle parses and validates one stream entry, then pushes it.
func (s *StreamSource) handle(msg redis.XMessage) {
	s.received.Add(1)

	data, ok := msg.Values["data"].(string)
	if !ok {
		s.invalid.Add(1)
		s.logger.Debug("signal entry missing data field", "id", msg.ID)
		return
	}

	var w wireSignal
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		s.invalid.Add(1)
		s.logger.Debug("signal entry not valid json", "id", msg.ID, "error", err)
		return
	}

	sig := model.Signal{
		EventID:              w.EventID,
		Side:                 model.Side(w.Side),
		EstimatedProbability: w.Probability,
		Confidence:           w.Confidence,
		SourceStrategy:       w.Strategy,
		ClusterID:            w.ClusterID,
		GeneratedAt:          w.GeneratedAt,
		ExpiresAt:            w.ExpiresAt,
	}
	if err := sig.Validate(); err != nil {
		s.invalid.Add(1)
		s.logger.Debug("signal rejected", "id", msg.ID, "error", err)
		return
	}

	if !s.queue.Push(sig) {
		s.logger.Warn("signal queue full, dropping",
			"event", sig.EventID,
			"strategy", sig.SourceStrategy,
		)
	}
}
