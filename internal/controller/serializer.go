// Package controller serializes session-affecting operations against
// the remote test server and owns the run lifecycle. The server is a
// single logical connection with ordered request/response semantics;
// interleaving two runs, or a run with a list, would corrupt its state.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/testdeck/testdeck/internal/log"
)

// DefaultQueueCapacity is the default buffer size for the command queue.
const DefaultQueueCapacity = 256

// ErrQueueClosed is returned when enqueueing after Close.
var ErrQueueClosed = errors.New("command queue closed")

// ErrQueueFull is returned when the queue buffer is exhausted.
var ErrQueueFull = errors.New("command queue full")

// Op is one serialized session operation.
type Op func(ctx context.Context) error

type queuedOp struct {
	label string
	op    Op
}

// QueueOption configures the CommandQueue.
type QueueOption func(*CommandQueue)

// WithQueueCapacity sets the command buffer capacity.
func WithQueueCapacity(capacity int) QueueOption {
	return func(q *CommandQueue) {
		q.capacity = capacity
	}
}

// WithTracer records a span per executed operation.
func WithTracer(tracer trace.Tracer) QueueOption {
	return func(q *CommandQueue) {
		q.tracer = tracer
	}
}

// CommandQueue executes operations one at a time in strict submission
// order on a single goroutine. An operation may block for as long as the
// server takes to answer; everything behind it waits. A failing
// operation is logged and the queue moves on — one bad command must not
// wedge the session.
type CommandQueue struct {
	capacity int
	tracer   trace.Tracer

	queue  chan queuedOp
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	processed atomic.Int64
	failed    atomic.Int64
}

// NewCommandQueue creates a queue and starts its processing loop. The
// supplied context bounds every operation; cancelling it aborts the
// in-flight operation and stops the loop.
func NewCommandQueue(ctx context.Context, opts ...QueueOption) *CommandQueue {
	q := &CommandQueue{
		capacity: DefaultQueueCapacity,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.queue = make(chan queuedOp, q.capacity)
	q.ctx, q.cancel = context.WithCancel(ctx)

	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *CommandQueue) loop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case item := <-q.queue:
			q.execute(item)
		}
	}
}

func (q *CommandQueue) execute(item queuedOp) {
	ctx, span := q.tracer.Start(q.ctx, "command."+item.label,
		trace.WithAttributes(attribute.String("command.label", item.label)))
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(log.CatQueue, "command panicked", "label", item.label, "panic", r)
				err = errors.New("command panicked")
			}
		}()
		return item.op(ctx)
	}()

	q.processed.Add(1)
	if err != nil {
		q.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatQueue, "command failed", err, "label", item.label)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Enqueue appends an operation. Fire-and-forget: the caller learns about
// submission problems only, never about the operation's own outcome.
func (q *CommandQueue) Enqueue(label string, op Op) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.queue <- queuedOp{label: label, op: op}:
		log.Debug(log.CatQueue, "command enqueued", "label", label, "depth", len(q.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Processed returns the number of executed operations.
func (q *CommandQueue) Processed() int64 {
	return q.processed.Load()
}

// Failed returns the number of operations that returned an error.
func (q *CommandQueue) Failed() int64 {
	return q.failed.Load()
}

// Close stops accepting operations, aborts the in-flight one and waits
// for the loop to exit. Queued but unexecuted operations are discarded.
func (q *CommandQueue) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	q.cancel()
	q.wg.Wait()
	if n := len(q.queue); n > 0 {
		log.Debug(log.CatQueue, "discarding queued commands on close", "count", n)
	}
}
