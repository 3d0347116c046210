package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	journalQueueSize     = 256
	journalBatchSize     = 64
	journalFlushInterval = 2 * time.Second
)

// JournalEntry is one sizing verdict as it will be written. Skips carry
// a zero quantity and limit price; placed and downsized entries carry
// the request they produced.
type JournalEntry struct {
	RequestID  string
	EventID    string
	Side       string
	Outcome    string
	Reason     string
	Edge       float64
	Quantity   int
	LimitPrice int
	DecidedAt  time.Time
}

// JournalMetrics counts journal writer activity.
type JournalMetrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64
}

// Journal writes sizing verdicts to the risk_journal table in batches,
// off the decision path.
type Journal struct {
	store  *Store
	logger *slog.Logger

	input chan JournalEntry

	mu      sync.Mutex
	batch   []JournalEntry
	metrics JournalMetrics

	ctx         context.Context
	cancel      context.CancelFunc
	flushTicker *time.Ticker
	wg          sync.WaitGroup
}

// NewJournal creates a journal writer over the store's pool.
func NewJournal(s *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:  s,
		logger: logger.With("component", "journal"),
		input:  make(chan JournalEntry, journalQueueSize),
		batch:  make([]JournalEntry, 0, journalBatchSize),
	}
}

// Record queues one verdict row. When the queue is saturated the entry
// is dropped and counted; journaling never blocks the decision cycle.
func (j *Journal) Record(e JournalEntry) {
	select {
	case j.input <- e:
	default:
		j.mu.Lock()
		j.metrics.Dropped++
		j.mu.Unlock()
	}
}

// Stats returns current writer metrics.
func (j *Journal) Stats() JournalMetrics {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.metrics
}

// Start begins consuming entries and writing batches.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.flushTicker = time.NewTicker(journalFlushInterval)

	j.wg.Add(1)
	go j.consumeLoop()

	j.wg.Add(1)
	go j.flushLoop()

	j.logger.Info("risk journal started",
		"batch_size", journalBatchSize,
		"flush_interval", journalFlushInterval,
	)
	return nil
}

// Stop drains the queue and writes the final batch.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping risk journal")

	if j.cancel != nil {
		j.cancel()
	}
	if j.flushTicker != nil {
		j.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("risk journal stop timed out")
	}

	j.flush(ctx)
	return nil
}

func (j *Journal) consumeLoop() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ctx.Done():
			// Pull whatever is still buffered into the batch; Stop
			// writes it in the final flush.
			for {
				select {
				case e := <-j.input:
					j.append(e)
				default:
					return
				}
			}
		case e := <-j.input:
			if j.append(e) {
				j.flush(j.ctx)
			}
		}
	}
}

func (j *Journal) flushLoop() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-j.flushTicker.C:
			j.flush(j.ctx)
		}
	}
}

// append adds an entry to the batch and reports whether the batch is
// full and should be flushed.
func (j *Journal) append(e JournalEntry) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.batch = append(j.batch, e)
	return len(j.batch) >= journalBatchSize
}

// flush writes the current batch to the database.
func (j *Journal) flush(ctx context.Context) {
	j.mu.Lock()
	if len(j.batch) == 0 {
		j.mu.Unlock()
		return
	}
	batch := j.batch
	j.batch = make([]JournalEntry, 0, journalBatchSize)
	j.mu.Unlock()

	start := time.Now()

	b := &pgx.Batch{}
	for _, e := range batch {
		b.Queue(`
			INSERT INTO risk_journal
				(request_id, event_id, side, outcome, reason, edge, quantity, limit_price, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, e.RequestID, e.EventID, e.Side, e.Outcome, e.Reason, e.Edge, e.Quantity, e.LimitPrice, e.DecidedAt)
	}

	results := j.store.db.SendBatch(ctx, b)
	var insertErr error
	for range batch {
		if _, err := results.Exec(); err != nil {
			insertErr = err
			break
		}
	}
	results.Close()

	j.mu.Lock()
	defer j.mu.Unlock()
	if insertErr != nil {
		j.logger.Error("journal batch insert failed", "error", insertErr, "count", len(batch))
		j.metrics.Errors++
		return
	}
	j.metrics.Inserts += int64(len(batch))
	j.metrics.Flushes++
	j.logger.Debug("flushed journal entries",
		"count", len(batch),
		"duration", time.Since(start),
	)
}
