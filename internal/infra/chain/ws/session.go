// Package ws implements a chain session over a JSON-RPC WebSocket.
//
// One socket carries every request. Replies are matched by id; progress for an
// in-flight submission arrives as relay_txStatus notifications that carry the
// id of the submit call.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/chain"
)

const (
	DefaultSubmitMethod = "relay_submitProof"
	StatusNotification  = "relay_txStatus"
)

var errClosed = errors.New("session closed")

// Config holds WebSocket session settings.
type Config struct {
	URL              string
	SubmitMethod     string
	HealthMethod     string // optional round trip performed during Dial
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Dialer opens WebSocket sessions.
type Dialer struct {
	cfg Config
}

// NewDialer creates a dialer, filling in defaults.
func NewDialer(cfg Config) *Dialer {
	if cfg.SubmitMethod == "" {
		cfg.SubmitMethod = DefaultSubmitMethod
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Dialer{cfg: cfg}
}

// Dial connects and, when configured, checks the node answers HealthMethod.
func (d *Dialer) Dial(ctx context.Context) (chain.Session, error) {
	wd := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}

	conn, _, err := wd.DialContext(ctx, d.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("connection to %s failed: %w", d.cfg.URL, err)
	}

	s := newSession(conn, d.cfg)
	go s.readLoop()

	if d.cfg.HealthMethod != "" {
		if err := s.call(ctx, d.cfg.HealthMethod, []any{}, nil, nil); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("health check %s: %w", d.cfg.HealthMethod, err)
		}
	}

	s.log.Info("Connected to chain node", "url", d.cfg.URL)
	return s, nil
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type message struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type statusParams struct {
	ID        uint64          `json:"id"`
	Status    domain.TxStatus `json:"status"`
	TxHash    string          `json:"txHash"`
	BlockHash string          `json:"blockHash"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type pendingCall struct {
	reply    chan *message
	progress chain.ProgressFunc
}

type session struct {
	conn *websocket.Conn
	cfg  Config
	log  *slog.Logger

	nextID  atomic.Uint64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, cfg Config) *session {
	return &session{
		conn:    conn,
		cfg:     cfg,
		log:     slog.Default().With("component", "ws-session"),
		pending: make(map[uint64]*pendingCall),
		done:    make(chan struct{}),
	}
}

func (s *session) SubmitProof(
	ctx context.Context,
	req *domain.SubmissionRequest,
	progress chain.ProgressFunc,
) (*domain.TxResult, error) {
	var reply chain.SubmitReply
	if err := s.call(ctx, s.cfg.SubmitMethod, chain.NewSubmitParams(req), progress, &reply); err != nil {
		return nil, err
	}
	if reply.TxHash == "" {
		return nil, fmt.Errorf("submission reply for %s has no tx hash", req.ID)
	}
	return &domain.TxResult{
		Success:     true,
		TxHash:      reply.TxHash,
		BlockHash:   reply.BlockHash,
		ExplorerURL: reply.ExplorerURL,
	}, nil
}

func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.shutdown(errClosed)
	return nil
}

func (s *session) call(ctx context.Context, method string, params any, progress chain.ProgressFunc, out any) error {
	id := s.nextID.Add(1)
	pc := &pendingCall{reply: make(chan *message, 1), progress: progress}

	s.mu.Lock()
	select {
	case <-s.done:
		err := s.err
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", chain.ErrNotConnected, err)
	default:
	}
	s.pending[id] = pc
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	err := s.conn.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	s.writeMu.Unlock()
	if err != nil {
		s.shutdown(fmt.Errorf("connection write failed: %w", err))
		return fmt.Errorf("connection write failed: %w", err)
	}

	select {
	case msg := <-pc.reply:
		if msg.Error != nil {
			return msg.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(msg.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-s.done:
		return fmt.Errorf("connection lost awaiting %s reply: %w", method, s.Err())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(fmt.Errorf("connection read failed: %w", err))
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("Dropping malformed message", "error", err)
			continue
		}

		switch {
		case msg.ID != nil:
			s.mu.Lock()
			pc := s.pending[*msg.ID]
			s.mu.Unlock()
			if pc == nil {
				s.log.Debug("Reply for unknown request", "id", *msg.ID)
				continue
			}
			select {
			case pc.reply <- &msg:
			default:
			}
		case msg.Method == StatusNotification:
			s.notify(msg.Params)
		default:
			s.log.Debug("Ignoring notification", "method", msg.Method)
		}
	}
}

func (s *session) notify(raw json.RawMessage) {
	var p statusParams
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("Malformed status notification", "error", err)
		return
	}

	s.mu.Lock()
	pc := s.pending[p.ID]
	s.mu.Unlock()
	if pc == nil || pc.progress == nil {
		return
	}
	pc.progress(domain.TxProgress{Status: p.Status, TxHash: p.TxHash, BlockHash: p.BlockHash})
}

// shutdown records the first error, closes the socket and wakes every waiter.
func (s *session) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		close(s.done)
		s.mu.Unlock()

		_ = s.conn.Close()
		if !errors.Is(err, errClosed) {
			s.log.Warn("Chain session closed", "error", err)
		}
	})
}
