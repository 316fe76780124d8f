package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BatchInserter is the interface used by Collector to persist events. It
// exists to allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, events []Event) error
}

// Metrics is the optional metrics hook for the collector.
type Metrics interface {
	SetAuditBufferSize(n int)
	IncAuditFlush(status string)
	IncAuditEvents(n int)
}

// Collector buffers audit events in memory and periodically flushes them to
// the store in batches. It is safe for concurrent use.
type Collector struct {
	store         BatchInserter
	buffer        []Event
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
	metrics       Metrics
}

// NewCollector creates a Collector that flushes to the given store when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration) *Collector {
	return &Collector{
		store:         store,
		buffer:        make([]Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// SetMetrics sets the optional metrics recorder.
func (c *Collector) SetMetrics(m Metrics) {
	c.metrics = m
}

// Start begins a background goroutine that flushes buffered events on a
// timer. It blocks until Stop is called or the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Record adds an event to the buffer, assigning an ID and timestamp if they
// are unset. If the buffer reaches batchSize, a flush is triggered
// immediately.
func (c *Collector) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, ev)
	bufLen := len(c.buffer)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetAuditBufferSize(bufLen)
		c.metrics.IncAuditEvents(1)
	}
	if bufLen >= c.batchSize {
		c.flush()
	}
}

// flush drains all buffered events and writes them to the store. It logs
// errors rather than returning them so callers are not blocked.
func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Event, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.store.BatchInsert(ctx, batch); err != nil {
		slog.Error("failed to flush ledger audit events", "count", len(batch), "error", err)
		if c.metrics != nil {
			c.metrics.IncAuditFlush("error")
		}
		return
	}
	if c.metrics != nil {
		c.metrics.IncAuditFlush("ok")
		c.metrics.SetAuditBufferSize(0)
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (c *Collector) Stop() {
	close(c.done)
}
