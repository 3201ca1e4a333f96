// Package queue serializes verification requests into an ordered stream of
// chain submissions.
//
// Items are drained FIFO by a fixed number of workers. A worker only pops the
// head once the connection gate reports a live session, so requests made while
// the chain is unreachable wait instead of failing. Nonce races are retried at
// the head of the queue; every other failure settles the caller.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/chain"
	"github.com/vietddude/zkrelay/internal/relay/failure"
)

var (
	// ErrShuttingDown rejects submissions once Shutdown has begun.
	ErrShuttingDown = errors.New("submission queue is shutting down")
	// ErrTimeout is returned when an item is not settled within its timeout.
	ErrTimeout = errors.New("submission timed out")
	// ErrCleared is returned to callers whose items were dropped by ClearQueue.
	ErrCleared = errors.New("submission cleared from queue")
)

// Submitter sends one request to the chain using the live session.
type Submitter interface {
	Submit(ctx context.Context, req *domain.SubmissionRequest, progress chain.ProgressFunc) (*domain.TxResult, error)
}

// ConnectionGate blocks until submissions may proceed.
type ConnectionGate interface {
	WaitReady(ctx context.Context) error
}

type stateReporter interface {
	State() domain.ConnectionState
}

// Config holds queue settings.
type Config struct {
	MaxConcurrent int
	RetryAttempts int
	RetryDelay    time.Duration
	ItemTimeout   time.Duration
	Networks      []domain.Network
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 1,
		RetryAttempts: 1,
		RetryDelay:    time.Second,
		ItemTimeout:   5 * time.Minute,
		Networks:      []domain.Network{domain.NetworkTestnet},
	}
}

// SubmitInput is what a caller hands to Submit.
type SubmitInput struct {
	Proof         json.RawMessage
	PublicSignals []string
	VK            domain.VKRef
	Network       domain.Network
	// Timeout overrides Config.ItemTimeout when positive.
	Timeout time.Duration
}

// ClearResult reports what ClearQueue dropped.
type ClearResult struct {
	Cleared           int  `json:"cleared"`
	ActiveInterrupted bool `json:"active_interrupted"`
}

type item struct {
	req     *domain.SubmissionRequest
	budget  retry.Backoff
	started bool // guarded by Queue.mu

	once   sync.Once
	done   chan struct{}
	result *domain.TxResult
	err    error
}

// settle completes the item exactly once and reports whether this call won.
func (it *item) settle(res *domain.TxResult, err error) bool {
	won := false
	it.once.Do(func() {
		it.result = res
		it.err = err
		close(it.done)
		won = true
	})
	return won
}

func (it *item) settled() bool {
	select {
	case <-it.done:
		return true
	default:
		return false
	}
}

// Queue is the submission queue.
type Queue struct {
	cfg       Config
	submitter Submitter
	gate      ConnectionGate
	networks  map[domain.Network]struct{}
	log       *slog.Logger
	events    *hub

	mu              sync.Mutex
	pending         []*item
	active          map[string]*domain.ActiveTransactionInfo
	retrying        map[string]*item // waiting out a retry delay, still listed in active
	wake            chan struct{}    // closed and replaced whenever pending grows
	lastCompletedAt *time.Time
	processed       int64
	failed          int64
	shuttingDown    bool

	startOnce    sync.Once
	shutdownOnce sync.Once
	stopCh       chan struct{}
	drained      chan struct{}
	wg           sync.WaitGroup
}

// New creates a queue. Workers do not run until Start is called.
func New(cfg Config, submitter Submitter, gate ConnectionGate) *Queue {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = DefaultConfig().ItemTimeout
	}

	networks := make(map[domain.Network]struct{}, len(cfg.Networks))
	for _, n := range cfg.Networks {
		networks[n] = struct{}{}
	}

	return &Queue{
		cfg:       cfg,
		submitter: submitter,
		gate:      gate,
		networks:  networks,
		log:       slog.Default().With("component", "queue"),
		events:    newHub(),
		active:    make(map[string]*domain.ActiveTransactionInfo),
		retrying:  make(map[string]*item),
		wake:      make(chan struct{}),
		stopCh:    make(chan struct{}),
		drained:   make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		go func() {
			<-q.stopCh
			cancel()
		}()

		q.log.Info("Starting submission queue",
			"workers", q.cfg.MaxConcurrent,
			"retry_attempts", q.cfg.RetryAttempts,
			"item_timeout", q.cfg.ItemTimeout)

		for i := 0; i < q.cfg.MaxConcurrent; i++ {
			q.wg.Add(1)
			go q.worker(ctx)
		}
	})
}

// Submit validates in, enqueues it and blocks until it is settled, it times
// out or ctx is done.
func (q *Queue) Submit(ctx context.Context, in SubmitInput) (*domain.TxResult, error) {
	q.mu.Lock()
	closing := q.shuttingDown
	q.mu.Unlock()
	if closing {
		return nil, ErrShuttingDown
	}

	if err := q.validate(in); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	timeout := q.cfg.ItemTimeout
	if in.Timeout > 0 {
		timeout = in.Timeout
	}

	it := &item{
		req: &domain.SubmissionRequest{
			ID:            id.String(),
			Proof:         in.Proof,
			PublicSignals: in.PublicSignals,
			VK:            in.VK,
			Network:       in.Network,
			CreatedAt:     time.Now(),
			MaxRetries:    q.cfg.RetryAttempts,
		},
		budget: retryBudget(q.cfg.RetryAttempts, q.cfg.RetryDelay),
		done:   make(chan struct{}),
	}

	q.mu.Lock()
	if q.shuttingDown {
		q.mu.Unlock()
		return nil, ErrShuttingDown
	}
	q.pending = append(q.pending, it)
	depth := len(q.pending)
	// Published under mu so it always precedes the processing event.
	q.events.publish(domain.Event{
		EventType:   domain.EventTypeEnqueued,
		RequestID:   it.req.ID,
		Network:     it.req.Network,
		QueueLength: depth,
	})
	q.signalLocked()
	q.mu.Unlock()

	q.log.Debug("Submission enqueued", "request_id", it.req.ID, "network", it.req.Network, "queue_length", depth)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-it.done:
	case <-timer.C:
		q.expire(it, fmt.Errorf("%w: request %s after %s", ErrTimeout, it.req.ID, timeout))
	case <-ctx.Done():
		q.expire(it, fmt.Errorf("%w: request %s: %w", ErrTimeout, it.req.ID, ctx.Err()))
	}
	return it.result, it.err
}

// ClearQueue drops every pending item along with items waiting out a retry
// delay. An attempt already on the wire is left running.
func (q *Queue) ClearQueue() ClearResult {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	for id, it := range q.retrying {
		cleared = append(cleared, it)
		delete(q.retrying, id)
		delete(q.active, id)
	}
	interrupted := len(q.active) > 0
	for _, it := range cleared {
		it.settle(nil, ErrCleared)
	}
	q.mu.Unlock()

	q.log.Warn("Submission queue cleared", "cleared", len(cleared), "active_interrupted", interrupted)
	q.events.publish(domain.Event{
		EventType: domain.EventTypeCleared,
		Cleared:   len(cleared),
	})
	return ClearResult{Cleared: len(cleared), ActiveInterrupted: interrupted}
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() domain.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := domain.QueueStatus{
		QueueLength:  len(q.pending),
		InFlight:     len(q.active),
		Processed:    q.processed,
		Failed:       q.failed,
		ShuttingDown: q.shuttingDown,
	}
	for _, a := range q.active {
		if st.Active == nil || a.StartedAt.Before(st.Active.StartedAt) {
			cp := *a
			st.Active = &cp
		}
	}
	if q.lastCompletedAt != nil {
		t := *q.lastCompletedAt
		st.LastCompletedAt = &t
	}
	if sr, ok := q.gate.(stateReporter); ok {
		st.Connection = sr.State()
	}
	return st
}

// Subscribe returns a channel of lifecycle events and a function that
// unsubscribes. Events are dropped when the channel is full.
func (q *Queue) Subscribe(buffer int) (<-chan domain.Event, func()) {
	return q.events.subscribe(buffer)
}

// Shutdown stops accepting work, waits for in-flight attempts to finish and
// rejects whatever is still pending. Safe to call multiple times.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.shutdownOnce.Do(func() {
		q.mu.Lock()
		q.shuttingDown = true
		q.signalLocked()
		q.mu.Unlock()

		q.log.Info("Shutting down submission queue")
		close(q.stopCh)

		go func() {
			q.wg.Wait()

			q.mu.Lock()
			rest := q.pending
			q.pending = nil
			q.mu.Unlock()

			for _, it := range rest {
				it.settle(nil, ErrShuttingDown)
			}
			if len(rest) > 0 {
				q.log.Warn("Rejected pending submissions on shutdown", "count", len(rest))
			}
			q.events.close()
			close(q.drained)
		}()
	})

	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) validate(in SubmitInput) error {
	if len(in.Proof) == 0 || string(in.Proof) == "null" {
		return failure.Validation("missing proof")
	}
	if len(in.PublicSignals) == 0 {
		return failure.Validation("missing public signals")
	}
	if err := in.VK.Validate(); err != nil {
		return failure.Validation("%v", err)
	}
	if _, ok := q.networks[in.Network]; !ok {
		return failure.Validation("invalid network %q", in.Network)
	}
	return nil
}

// expire settles it with err unless something else already did, and pulls it
// out of the pending list if it never started. Settling and removal happen
// under mu so a worker never pops an item whose caller is gone.
func (q *Queue) expire(it *item, err error) {
	q.mu.Lock()
	if !it.settle(nil, err) {
		q.mu.Unlock()
		return
	}
	started := it.started
	if !started {
		q.removeLocked(it)
	}
	if _, ok := q.retrying[it.req.ID]; ok {
		delete(q.retrying, it.req.ID)
		delete(q.active, it.req.ID)
	}
	depth := len(q.pending)
	retries := it.req.RetryCount
	q.mu.Unlock()

	q.log.Warn("Submission timed out", "request_id", it.req.ID, "started", started, "error", err)
	q.events.publish(domain.Event{
		EventType:   domain.EventTypeTimeout,
		RequestID:   it.req.ID,
		Network:     it.req.Network,
		Signals:     it.req.PublicSignals,
		QueueLength: depth,
		RetryCount:  retries,
		Error:       err.Error(),
	})
}

func (q *Queue) removeLocked(target *item) {
	for i, it := range q.pending {
		if it == target {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// signalLocked wakes every worker waiting for work. Caller holds mu.
func (q *Queue) signalLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func retryBudget(attempts int, delay time.Duration) retry.Backoff {
	var b retry.Backoff
	if delay > 0 {
		b = retry.NewConstant(delay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.WithMaxRetries(uint64(attempts), b)
}
