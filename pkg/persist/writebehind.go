// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package persist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/metrics"
	"github.com/jeremyhahn/go-shiftsync/pkg/staff"
)

var (
	// ErrShuttingDown is returned by Submit after Shutdown.
	ErrShuttingDown = errors.New("write-behind pool is shutting down")
	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("write-behind queue is full")
)

// OpKind is the kind of a queued write.
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

// Op is a single queued write.
type Op struct {
	Kind   OpKind
	ID     string
	Member *staff.Member
	Clock  int64
}

// WriteBehindConfig contains configuration for the write-behind pool.
type WriteBehindConfig struct {
	Persister   Persister
	WorkerCount int
	QueueSize   int
	// OpTimeout bounds a single persister call.
	OpTimeout time.Duration
	Logger    adapters.Logger
	Metrics   *metrics.Metrics
}

// WriteBehind applies store mutations to a Persister from a pool of
// workers. Submissions never block; when the queue is full the write is
// dropped and counted as a persist error.
type WriteBehind struct {
	persister   Persister
	workerCount int
	opTimeout   time.Duration
	workQueue   chan Op
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      adapters.Logger
	metrics     *metrics.Metrics

	// mu guards closed and the close of workQueue against concurrent Submit.
	mu     sync.RWMutex
	closed bool

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewWriteBehind creates the pool and starts its workers.
func NewWriteBehind(config WriteBehindConfig) *WriteBehind {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	wb := &WriteBehind{
		persister:   config.Persister,
		workerCount: config.WorkerCount,
		opTimeout:   config.OpTimeout,
		workQueue:   make(chan Op, config.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      config.Logger,
		metrics:     config.Metrics,
	}
	for i := 0; i < wb.workerCount; i++ {
		wb.wg.Add(1)
		go wb.worker(i)
	}
	return wb
}

// RecordUpsert queues an upsert of m at clock.
func (wb *WriteBehind) RecordUpsert(m *staff.Member, clock int64) {
	wb.record(Op{Kind: OpUpsert, ID: m.ID, Member: m, Clock: clock})
}

// RecordDelete queues a delete of id at clock.
func (wb *WriteBehind) RecordDelete(id string, clock int64) {
	wb.record(Op{Kind: OpDelete, ID: id, Clock: clock})
}

func (wb *WriteBehind) record(op Op) {
	if err := wb.Submit(op); err != nil {
		wb.dropped.Add(1)
		wb.metrics.IncPersistErrors()
		wb.logger.Warn(wb.ctx, "Dropped write-behind operation",
			adapters.Field{Key: "staff_id", Value: op.ID},
			adapters.Field{Key: "clock", Value: op.Clock},
			adapters.ErrField(err))
	}
}

// Submit adds op to the queue without blocking.
func (wb *WriteBehind) Submit(op Op) error {
	wb.mu.RLock()
	defer wb.mu.RUnlock()

	if wb.closed {
		return ErrShuttingDown
	}
	select {
	case wb.workQueue <- op:
		return nil
	default:
		return ErrQueueFull
	}
}

func (wb *WriteBehind) worker(id int) {
	defer wb.wg.Done()

	wb.logger.Debug(wb.ctx, "Write-behind worker started",
		adapters.Field{Key: "worker_id", Value: id})

	for op := range wb.workQueue {
		err := wb.apply(op)
		wb.processed.Add(1)
		if err != nil {
			wb.failed.Add(1)
			wb.metrics.IncPersistErrors()
			wb.logger.Error(wb.ctx, "Write-behind operation failed",
				adapters.Field{Key: "worker_id", Value: id},
				adapters.Field{Key: "staff_id", Value: op.ID},
				adapters.Field{Key: "clock", Value: op.Clock},
				adapters.ErrField(err))
			continue
		}
		wb.succeeded.Add(1)
		wb.metrics.IncPersistWrites()
	}
}

func (wb *WriteBehind) apply(op Op) error {
	ctx, cancel := context.WithTimeout(wb.ctx, wb.opTimeout)
	defer cancel()

	switch op.Kind {
	case OpDelete:
		return wb.persister.Delete(ctx, op.ID, op.Clock)
	default:
		return wb.persister.Upsert(ctx, op.Member, op.Clock)
	}
}

// Shutdown stops accepting work, drains the queue and waits for the
// workers. It does not close the persister.
func (wb *WriteBehind) Shutdown() {
	wb.mu.Lock()
	if wb.closed {
		wb.mu.Unlock()
		return
	}
	wb.closed = true
	close(wb.workQueue)
	wb.mu.Unlock()

	wb.logger.Info(wb.ctx, "Shutting down write-behind pool",
		adapters.Field{Key: "workers", Value: wb.workerCount})

	wb.wg.Wait()
	wb.cancel()

	stats := wb.Stats()
	wb.logger.Info(context.Background(), "Write-behind pool shutdown complete",
		adapters.Field{Key: "processed", Value: stats.Processed},
		adapters.Field{Key: "succeeded", Value: stats.Succeeded},
		adapters.Field{Key: "failed", Value: stats.Failed},
		adapters.Field{Key: "dropped", Value: stats.Dropped})
}

// Stats returns the pool counters.
func (wb *WriteBehind) Stats() WriteBehindStats {
	return WriteBehindStats{
		Processed: wb.processed.Load(),
		Succeeded: wb.succeeded.Load(),
		Failed:    wb.failed.Load(),
		Dropped:   wb.dropped.Load(),
		Queued:    len(wb.workQueue),
	}
}

// WriteBehindStats contains write-behind pool counters.
type WriteBehindStats struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}
