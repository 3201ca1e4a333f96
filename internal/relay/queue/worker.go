package queue

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/chain"
	"github.com/vietddude/zkrelay/internal/relay/failure"
)

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		it := q.next(ctx)
		if it == nil {
			return
		}
		q.process(ctx, it)
	}
}

// next waits for pending work and a live connection, then pops the head.
// It returns nil once the queue is shutting down.
func (q *Queue) next(ctx context.Context) *item {
	for {
		q.mu.Lock()
		if q.shuttingDown {
			q.mu.Unlock()
			return nil
		}
		if len(q.pending) == 0 {
			wake := q.wake
			q.mu.Unlock()
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return nil
			}
		}
		q.mu.Unlock()

		if err := q.gate.WaitReady(ctx); err != nil {
			return nil
		}

		q.mu.Lock()
		if q.shuttingDown {
			q.mu.Unlock()
			return nil
		}
		for len(q.pending) > 0 && q.pending[0].settled() {
			q.pending[0] = nil
			q.pending = q.pending[1:]
		}
		if len(q.pending) == 0 {
			// Timed out or cleared while we waited for the connection.
			q.mu.Unlock()
			continue
		}
		it := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		it.started = true
		q.active[it.req.ID] = &domain.ActiveTransactionInfo{
			RequestID:  it.req.ID,
			StartedAt:  time.Now(),
			RetryCount: it.req.RetryCount,
			Status:     domain.TxStatusSubmitting,
		}
		depth := len(q.pending)
		q.mu.Unlock()

		q.events.publish(domain.Event{
			EventType:   domain.EventTypeProcessing,
			RequestID:   it.req.ID,
			Network:     it.req.Network,
			QueueLength: depth,
			RetryCount:  it.req.RetryCount,
		})
		return it
	}
}

func (q *Queue) process(ctx context.Context, it *item) {
	id := it.req.ID
	start := time.Now()

	q.log.Info("Submitting proof",
		"request_id", id,
		"network", it.req.Network,
		"retry", it.req.RetryCount)

	// A dispatched attempt runs to completion even when the queue stops.
	res, err := q.submitter.Submit(context.WithoutCancel(ctx), it.req, q.progressFor(id))
	elapsed := time.Since(start)

	if err == nil {
		q.complete(it, res, elapsed)
		return
	}

	if errors.Is(err, chain.ErrNotConnected) {
		// Never reached the chain; put it back and wait for the connection.
		q.log.Warn("Session unavailable, requeueing at head", "request_id", id, "error", err)
		q.mu.Lock()
		delete(q.active, id)
		q.mu.Unlock()
		q.requeue(it)
		return
	}

	fe := failure.Wrap(err)
	if fe.Retryable && !it.settled() {
		if delay, stop := it.budget.Next(); !stop {
			q.retry(ctx, it, fe, delay)
			return
		}
	}
	q.fail(it, fe, elapsed)
}

func (q *Queue) progressFor(id string) chain.ProgressFunc {
	return func(p domain.TxProgress) {
		q.mu.Lock()
		defer q.mu.Unlock()
		a, ok := q.active[id]
		if !ok {
			return
		}
		if p.TxHash != "" {
			a.TxHash = p.TxHash
		}
		if p.Status != "" {
			a.Status = p.Status
		}
	}
}

func (q *Queue) complete(it *item, res *domain.TxResult, elapsed time.Duration) {
	now := time.Now()

	q.mu.Lock()
	q.processed++
	q.lastCompletedAt = &now
	delete(q.active, it.req.ID)
	depth := len(q.pending)
	q.mu.Unlock()

	var txHash string
	if res != nil {
		txHash = res.TxHash
	}

	if !it.settle(res, nil) {
		q.log.Warn("Submission completed after caller gave up", "request_id", it.req.ID, "tx_hash", txHash)
	} else {
		q.log.Info("Submission completed", "request_id", it.req.ID, "tx_hash", txHash, "duration", elapsed)
	}

	q.events.publish(domain.Event{
		EventType:   domain.EventTypeCompleted,
		RequestID:   it.req.ID,
		Network:     it.req.Network,
		Signals:     it.req.PublicSignals,
		QueueLength: depth,
		RetryCount:  it.req.RetryCount,
		TxHash:      txHash,
		Duration:    elapsed,
	})
}

func (q *Queue) fail(it *item, fe *failure.Error, elapsed time.Duration) {
	q.mu.Lock()
	q.failed++
	delete(q.active, it.req.ID)
	depth := len(q.pending)
	q.mu.Unlock()

	it.settle(nil, fe)

	q.log.Warn("Submission failed",
		"request_id", it.req.ID,
		"category", fe.Category,
		"retry", it.req.RetryCount,
		"error", fe.Err)

	q.events.publish(domain.Event{
		EventType:   domain.EventTypeFailed,
		RequestID:   it.req.ID,
		Network:     it.req.Network,
		Signals:     it.req.PublicSignals,
		QueueLength: depth,
		RetryCount:  it.req.RetryCount,
		Category:    string(fe.Category),
		Error:       fe.Error(),
		Duration:    elapsed,
	})
}

// retry sleeps the retry delay and pushes it back to the head. While it
// waits the item stays in active as retrying, where Status and ClearQueue
// can see it.
func (q *Queue) retry(ctx context.Context, it *item, fe *failure.Error, delay time.Duration) {
	q.mu.Lock()
	it.req.RetryCount++
	if a, ok := q.active[it.req.ID]; ok {
		a.RetryCount = it.req.RetryCount
		a.Status = domain.TxStatusRetrying
	}
	q.retrying[it.req.ID] = it
	depth := len(q.pending)
	q.mu.Unlock()

	q.log.Info("Retrying submission",
		"request_id", it.req.ID,
		"retry", it.req.RetryCount,
		"max_retries", it.req.MaxRetries,
		"delay", delay,
		"error", fe.Err)

	q.events.publish(domain.Event{
		EventType:   domain.EventTypeRetry,
		RequestID:   it.req.ID,
		Network:     it.req.Network,
		QueueLength: depth,
		RetryCount:  it.req.RetryCount,
		Category:    string(fe.Category),
		Error:       fe.Error(),
	})

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-it.done:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		}
	}
	q.requeue(it)
}

// requeue puts it at the head unless its caller has already been answered.
func (q *Queue) requeue(it *item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.retrying, it.req.ID)
	delete(q.active, it.req.ID)
	if it.settled() {
		return
	}
	it.started = false
	q.pending = append([]*item{it}, q.pending...)
	q.signalLocked()
}
