package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/chain"
	"github.com/vietddude/zkrelay/internal/relay/failure"
)

// fakeNode is a minimal JSON-RPC chain node.
type fakeNode struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

type inbound struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.t.Errorf("upgrade: %v", err)
		return
	}
	n.mu.Lock()
	n.conns = append(n.conns, conn)
	n.mu.Unlock()

	for {
		var req inbound
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		n.handle(conn, req)
	}
}

func (n *fakeNode) handle(conn *websocket.Conn, req inbound) {
	switch req.Method {
	case "system_health":
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{"peers": 3}})
	case "system_broken":
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]any{"code": -32601, "message": "method not found"}})
	case DefaultSubmitMethod:
		var params chain.SubmitParams
		if err := json.Unmarshal(req.Params, &params); err != nil || len(params.PublicSignals) == 0 {
			n.t.Errorf("bad submit params: %s", req.Params)
			return
		}
		switch params.PublicSignals[0] {
		case "nonce":
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": 1014, "message": "Priority is too low"}})
		case "hang":
			// Never answers.
		case "drop":
			_ = conn.Close()
		default:
			_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": StatusNotification,
				"params": map[string]any{"id": req.ID, "status": "in-block", "txHash": "0xfeed", "blockHash": "0xb1"}})
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": StatusNotification,
				"params": map[string]any{"id": req.ID, "status": "finalizing", "txHash": "0xfeed", "blockHash": "0xb1"}})
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID,
				"result": map[string]any{"txHash": "0xfeed", "blockHash": "0xb1"}})
		}
	}
}

func (n *fakeNode) dropAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.conns {
		_ = c.Close()
	}
}

func startNode(t *testing.T) (*fakeNode, string) {
	t.Helper()
	node := &fakeNode{t: t}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return node, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) chain.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := NewDialer(Config{URL: url, HealthMethod: "system_health"}).Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func newRequest(signal string) *domain.SubmissionRequest {
	return &domain.SubmissionRequest{
		ID:            "req-1",
		Proof:         json.RawMessage(`{"pi_a":[]}`),
		PublicSignals: []string{signal, "session", "0xplayer"},
		VK:            domain.RegisteredVK("0x" + strings.Repeat("ab", 32)),
		Network:       domain.NetworkTestnet,
	}
}

func TestSession_SubmitProof(t *testing.T) {
	_, url := startNode(t)
	sess := dial(t, url)

	var mu sync.Mutex
	var seen []domain.TxProgress
	progress := func(p domain.TxProgress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	}

	res, err := sess.SubmitProof(context.Background(), newRequest("100"), progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.TxHash != "0xfeed" || res.BlockHash != "0xb1" {
		t.Errorf("unexpected result: %+v", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 progress updates, got %d", len(seen))
	}
	if seen[0].Status != domain.TxStatusInBlock || seen[1].Status != domain.TxStatusFinalizing {
		t.Errorf("unexpected progress sequence: %+v", seen)
	}
}

func TestSession_RPCErrorIsClassified(t *testing.T) {
	_, url := startNode(t)
	sess := dial(t, url)

	_, err := sess.SubmitProof(context.Background(), newRequest("nonce"), nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != 1014 {
		t.Fatalf("expected rpc error 1014, got %v", err)
	}
	if c := failure.Classify(err); c.Category != failure.CategoryTransaction || !c.Retryable {
		t.Errorf("expected retryable transaction error, got %+v", c)
	}
}

func TestSession_ConnectionDropFailsPendingCall(t *testing.T) {
	_, url := startNode(t)
	sess := dial(t, url)

	_, err := sess.SubmitProof(context.Background(), newRequest("drop"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := failure.CategoryOf(err); got != failure.CategoryNetwork {
		t.Errorf("expected %s, got %s (%v)", failure.CategoryNetwork, got, err)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to report done")
	}
	if sess.Err() == nil {
		t.Error("expected session error")
	}
}

func TestSession_DoneOnServerClose(t *testing.T) {
	node, url := startNode(t)
	sess := dial(t, url)

	node.dropAll()
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to report done")
	}
}

func TestSession_SubmitAfterClose(t *testing.T) {
	_, url := startNode(t)
	sess := dial(t, url)
	_ = sess.Close()

	_, err := sess.SubmitProof(context.Background(), newRequest("100"), nil)
	if !errors.Is(err, chain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSession_ContextCancelled(t *testing.T) {
	_, url := startNode(t)
	sess := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := sess.SubmitProof(ctx, newRequest("hang"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDialer_HealthCheckFails(t *testing.T) {
	_, url := startNode(t)

	_, err := NewDialer(Config{URL: url, HealthMethod: "system_broken"}).Dial(context.Background())
	if err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Errorf("expected health check failure, got %v", err)
	}
}

func TestDialer_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewDialer(Config{URL: "ws://127.0.0.1:1"}).Dial(ctx)
	if got := failure.CategoryOf(err); got != failure.CategoryNetwork {
		t.Errorf("expected %s, got %s (%v)", failure.CategoryNetwork, got, err)
	}
}
