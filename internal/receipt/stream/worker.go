package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"veto/internal/receipt/models"
)

// ErrBufferFull is returned by Worker.Publish when the queue is saturated.
var ErrBufferFull = errors.New("receipt stream buffer full")

// ErrClosed is returned by Worker.Publish after Close.
var ErrClosed = errors.New("receipt stream closed")

const defaultPublishTimeout = 5 * time.Second

// FailureCounter is told about receipts that could not be delivered.
type FailureCounter interface {
	IncrementPublishFailures()
}

// Worker decouples request handling from the downstream publisher: Publish
// enqueues without blocking and Run delivers in the background. A receipt
// that cannot be enqueued or delivered is logged and counted, never retried;
// consumers can backfill from the receipt store.
type Worker struct {
	next     Publisher
	inbox    chan *models.Receipt
	logger   *slog.Logger
	failures FailureCounter
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithFailureCounter(f FailureCounter) WorkerOption {
	return func(w *Worker) {
		w.failures = f
	}
}

// WithPublishTimeout bounds each delivery attempt.
func WithPublishTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func NewWorker(next Publisher, buffer int, opts ...WorkerOption) *Worker {
	if buffer < 1 {
		buffer = 1
	}
	w := &Worker{
		next:    next,
		inbox:   make(chan *models.Receipt, buffer),
		timeout: defaultPublishTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Publish enqueues r for delivery.
func (w *Worker) Publish(ctx context.Context, r *models.Receipt) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.inbox <- r:
		return nil
	default:
		w.fail(ctx, r, ErrBufferFull)
		return ErrBufferFull
	}
}

// Run delivers queued receipts until Close is called and the queue is
// drained. Deliveries outlive ctx cancellation so a shutdown still drains.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for r := range w.inbox {
		w.deliver(ctx, r)
	}
}

func (w *Worker) deliver(ctx context.Context, r *models.Receipt) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	if err := w.next.Publish(pubCtx, r); err != nil {
		w.fail(ctx, r, err)
	}
}

func (w *Worker) fail(ctx context.Context, r *models.Receipt, err error) {
	if w.failures != nil {
		w.failures.IncrementPublishFailures()
	}
	if w.logger != nil {
		w.logger.WarnContext(ctx, "receipt stream publish failed",
			"receipt_id", r.ID.String(),
			"pointer_id", r.PointerID.String(),
			"operation", string(r.Operation),
			"error", err,
		)
	}
}

// Close stops accepting receipts and waits for Run to drain the queue or
// for ctx to expire.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.inbox)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
