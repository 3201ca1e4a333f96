// Package connection owns the single session to the remote verification
// chain and keeps it alive.
//
// # State machine
//
//	DISCONNECTED → CONNECTING → CONNECTED
//	                   ↑  ↓          ↓ (session lost)
//	                RECONNECTING ←───┘
//	                   ↓ (budget exhausted)
//	               GIVING_UP
//
// Any state moves to SHUTTING_DOWN on Shutdown; nothing leaves it.
//
// A single run goroutine owns the state variable and at most one backoff
// timer, so two reconnection sequences can never overlap. Disconnect reports
// while not connected are ignored.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/zkrelay/internal/infra/chain"
)

var (
	// ErrNotConnected is returned when a session is requested while not connected.
	ErrNotConnected = chain.ErrNotConnected

	// ErrGaveUp is returned by Session once the reconnection budget is spent.
	ErrGaveUp = errors.New("connection manager gave up reconnecting")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("connection manager already started")
)

// Config holds reconnection settings.
type Config struct {
	Backoff     Backoff
	DialTimeout time.Duration
}

// Stats is a snapshot of the manager for health reporting.
type Stats struct {
	State       State         `json:"state"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	Since       time.Time     `json:"since"`
	ConnectedAt *time.Time    `json:"connected_at,omitempty"`
	History     []Transition  `json:"-"`
	NextDelay   time.Duration `json:"next_delay,omitempty"`
}

// Manager drives the connection state machine.
type Manager struct {
	dialer      chain.Dialer
	backoff     Backoff
	dialTimeout time.Duration
	log         *slog.Logger

	mu          sync.RWMutex
	state       State
	session     chain.Session
	attempts    int
	lastErr     error
	since       time.Time
	connectedAt *time.Time
	ready       chan struct{} // closed while connected
	history     []Transition
	callback    func(Transition)

	startOnce sync.Once
	started   bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewManager creates a manager in the Disconnected state.
func NewManager(dialer chain.Dialer, cfg Config) *Manager {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Manager{
		dialer:      dialer,
		backoff:     cfg.Backoff,
		dialTimeout: cfg.DialTimeout,
		log:         slog.Default().With("component", "connection"),
		state:       StateDisconnected,
		since:       time.Now(),
		ready:       make(chan struct{}),
		history:     make([]Transition, 0, 10),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// SetStateChangeCallback registers callback for state changes.
// It is invoked outside the manager lock.
func (m *Manager) SetStateChangeCallback(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = fn
}

// Start launches the run loop. Cancelling ctx has the same effect as Shutdown.
func (m *Manager) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	m.startOnce.Do(func() {
		err = nil
		m.mu.Lock()
		m.started = true
		m.mu.Unlock()
		go m.run(ctx)
	})
	return err
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether submissions may proceed.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Session borrows the live session. Callers must not cache it.
func (m *Manager) Session() (chain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateGivingUp {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, ErrGaveUp)
	}
	if m.state != StateConnected || m.session == nil {
		return nil, fmt.Errorf("%w (state %s)", ErrNotConnected, m.state)
	}
	return m.session, nil
}

// WaitReady blocks until the manager is connected or ctx is done.
// In GivingUp and ShuttingDown it only returns through ctx.
func (m *Manager) WaitReady(ctx context.Context) error {
	for {
		m.mu.RLock()
		connected := m.state == StateConnected && m.session != nil
		ready := m.ready
		m.mu.RUnlock()

		if connected {
			return nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReportDisconnect tells the manager the current session looks dead.
// It is a no-op unless the manager is connected.
func (m *Manager) ReportDisconnect(reason error) {
	m.mu.Lock()
	if m.state != StateConnected || m.session == nil {
		m.mu.Unlock()
		return
	}
	sess := m.session
	m.lastErr = reason
	m.mu.Unlock()

	m.log.Warn("Session reported as lost", "reason", reason)
	_ = sess.Close()
}

// Stats returns a snapshot for health reporting.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		State:       m.state,
		Attempts:    m.attempts,
		Since:       m.since,
		ConnectedAt: m.connectedAt,
		History:     make([]Transition, len(m.history)),
	}
	copy(s.History, m.history)
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	if m.state == StateReconnecting {
		s.NextDelay = m.backoff.Delay(m.attempts)
	}
	return s
}

// Shutdown moves to ShuttingDown, abandons any pending dial or backoff wait,
// closes the session and waits for the run loop to exit.
// Safe to call multiple times.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop("shutdown requested")

	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return nil
	}

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) stop(reason string) {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		t, ok := m.applyLocked(StateShuttingDown, reason)
		sess := m.session
		m.session = nil
		m.connectedAt = nil
		m.mu.Unlock()

		if ok {
			m.emit(t)
		}
		close(m.stopCh)
		if sess != nil {
			_ = sess.Close()
		}
	})
}

func (m *Manager) run(parent context.Context) {
	defer close(m.done)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.transition(StateConnecting, "manager started")

	for {
		if ctx.Err() != nil {
			m.stop("context cancelled")
			return
		}

		switch m.State() {
		case StateConnecting:
			m.connect(ctx)
		case StateConnected:
			m.watch(ctx)
		case StateReconnecting:
			m.wait(ctx)
		case StateGivingUp:
			m.log.Error("Reconnection budget exhausted, giving up",
				"max_attempts", m.backoff.MaxAttempts)
			return
		default:
			return
		}
	}
}

// connect performs one dial including the handshake.
func (m *Manager) connect(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	sess, err := m.dialer.Dial(dialCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		m.log.Warn("Dial failed", "error", err)
		m.transition(StateReconnecting, fmt.Sprintf("dial failed: %v", err))
		return
	}

	m.mu.Lock()
	t, ok := m.applyLocked(StateConnected, "session established")
	if ok {
		now := time.Now()
		m.session = sess
		m.attempts = 0
		m.lastErr = nil
		m.connectedAt = &now
	}
	m.mu.Unlock()

	if !ok {
		// Shutdown won the race.
		_ = sess.Close()
		return
	}
	m.emit(t)
}

// watch blocks until the live session drops or the manager stops.
func (m *Manager) watch(ctx context.Context) {
	m.mu.RLock()
	sess := m.session
	m.mu.RUnlock()
	if sess == nil {
		m.transition(StateReconnecting, "no session")
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-sess.Done():
	}

	reason := "session closed"
	m.mu.Lock()
	if err := sess.Err(); err != nil {
		m.lastErr = err
	}
	if m.lastErr != nil {
		reason = fmt.Sprintf("session lost: %v", m.lastErr)
	}
	t, ok := m.applyLocked(StateReconnecting, reason)
	if ok && m.session == sess {
		m.session = nil
		m.connectedAt = nil
	}
	m.mu.Unlock()

	_ = sess.Close()
	if ok {
		m.log.Warn("Chain session lost", "reason", reason)
		m.emit(t)
	}
}

// wait sleeps out one backoff period, or gives up when the budget is spent.
func (m *Manager) wait(ctx context.Context) {
	m.mu.Lock()
	if m.backoff.Exhausted(m.attempts) {
		t, ok := m.applyLocked(StateGivingUp,
			fmt.Sprintf("%d reconnection attempts exhausted", m.attempts))
		m.mu.Unlock()
		if ok {
			m.emit(t)
		}
		return
	}
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	delay := m.backoff.Delay(attempt)
	m.log.Info("Reconnecting after backoff",
		"attempt", attempt,
		"max_attempts", m.backoff.MaxAttempts,
		"delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	m.transition(StateConnecting, fmt.Sprintf("backoff %s elapsed", delay))
}

func (m *Manager) transition(to State, reason string) bool {
	m.mu.Lock()
	t, ok := m.applyLocked(to, reason)
	m.mu.Unlock()
	if ok {
		m.emit(t)
	}
	return ok
}

// applyLocked changes state if the transition is valid. Caller holds mu.
func (m *Manager) applyLocked(to State, reason string) (Transition, bool) {
	from := m.state
	if !CanTransition(from, to) {
		return Transition{}, false
	}

	m.state = to
	m.since = time.Now()
	if to == StateConnected {
		close(m.ready)
	} else if from == StateConnected {
		m.ready = make(chan struct{})
	}

	t := NewTransition(from, to, reason, m.attempts)
	if len(m.history) >= 10 {
		copy(m.history, m.history[1:])
		m.history[len(m.history)-1] = t
	} else {
		m.history = append(m.history, t)
	}
	return t, true
}

func (m *Manager) emit(t Transition) {
	m.log.Info("Connection state changed",
		"from", t.From,
		"to", t.To,
		"reason", t.Reason,
		"attempt", t.Attempt)

	m.mu.RLock()
	cb := m.callback
	m.mu.RUnlock()
	if cb != nil {
		cb(t)
	}
}
