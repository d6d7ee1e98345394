// Package newsletter emails category subscribers about new posts and sends the periodic digest.
package newsletter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cppla/newspaper/utils"
)

// Mailer delivers a single plain text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Message is one queued email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// ErrQueueClosed is returned once Stop has been called.
var ErrQueueClosed = errors.New("newsletter queue closed")

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("newsletter queue full")

const sendTimeout = 30 * time.Second

// Dispatcher sends queued messages on a fixed pool of workers.
// Enqueue and Deliver never block a request handler; EnqueueWait does.
type Dispatcher struct {
	mailer  Mailer
	queue   chan Message
	workers int

	mu       sync.Mutex
	stopping bool
	started  bool
	wg       sync.WaitGroup

	// sendMu is held for reading while sending so the queue is never closed under a sender.
	sendMu sync.RWMutex
	closed bool

	// feeders are Deliver goroutines still pushing into the queue.
	feeders sync.WaitGroup
	quit    context.Context
	abort   context.CancelFunc
}

// NewDispatcher creates a dispatcher with a queue of size entries.
func NewDispatcher(mailer Mailer, workers, size int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if size <= 0 {
		size = 256
	}
	quit, abort := context.WithCancel(context.Background())
	return &Dispatcher{
		mailer:  mailer,
		queue:   make(chan Message, size),
		workers: workers,
		quit:    quit,
		abort:   abort,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopping {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.mailer.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
			utils.Sugar.Warnw("newsletter send failed", "to", msg.To, "subject", msg.Subject, "err", err)
		}
		cancel()
	}
}

// Enqueue adds msg to the queue without blocking.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.Lock()
	stopping := d.stopping
	d.mu.Unlock()
	if stopping {
		return ErrQueueClosed
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueWait adds msg to the queue, waiting for room until ctx ends or the
// dispatcher is stopped.
func (d *Dispatcher) EnqueueWait(ctx context.Context, msg Message) error {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit.Done():
		return ErrQueueClosed
	}
}

// Deliver hands msgs to a background goroutine that queues every one of them,
// waiting whenever the queue is full. Stop lets pending deliveries finish.
func (d *Dispatcher) Deliver(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return ErrQueueClosed
	}
	d.feeders.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.feeders.Done()
		for i, msg := range msgs {
			if err := d.EnqueueWait(d.quit, msg); err != nil {
				utils.Sugar.Warnw("newsletter messages dropped", "count", len(msgs)-i, "err", err)
				return
			}
		}
	}()
	return nil
}

// Stop waits for pending deliveries, then closes the queue and waits for the
// workers to drain it. Whatever is left when ctx ends is dropped.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return
	}
	d.stopping = true
	started := d.started
	d.mu.Unlock()

	if !waitCtx(ctx, &d.feeders) {
		utils.Sugar.Warn("newsletter deliveries still pending at shutdown")
	}
	d.abort()

	d.sendMu.Lock()
	d.closed = true
	close(d.queue)
	d.sendMu.Unlock()

	if !started {
		return
	}
	if !waitCtx(ctx, &d.wg) {
		utils.Sugar.Warn("newsletter queue not drained before shutdown")
	}
}

func waitCtx(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
