// Package grpcsession implements a chain session over gRPC.
//
// Submissions are unary calls carrying a google.protobuf.Struct, so no
// generated client is needed. The session is considered lost as soon as the
// channel leaves READY.
package grpcsession

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/chain"
)

// DefaultSubmitMethod is the full gRPC method used for submissions.
const DefaultSubmitMethod = "/zkrelay.v1.Relay/SubmitProof"

var errClosed = errors.New("session closed")

// Config holds gRPC session settings.
type Config struct {
	Endpoint      string
	SubmitMethod  string
	HealthService string
}

// Dialer opens gRPC sessions.
type Dialer struct {
	cfg Config
}

// NewDialer creates a dialer, filling in defaults.
func NewDialer(cfg Config) *Dialer {
	if cfg.SubmitMethod == "" {
		cfg.SubmitMethod = DefaultSubmitMethod
	}
	return &Dialer{cfg: cfg}
}

// target strips the scheme and picks transport credentials from it.
func target(endpoint string) (string, grpc.DialOption) {
	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		return strings.TrimPrefix(endpoint, "https://"), grpc.WithTransportCredentials(creds)
	}
	return strings.TrimPrefix(endpoint, "http://"), grpc.WithTransportCredentials(insecure.NewCredentials())
}

// Dial connects and performs a health check, which also forces the channel
// out of IDLE.
func (d *Dialer) Dial(ctx context.Context) (chain.Session, error) {
	addr, creds := target(d.cfg.Endpoint)

	conn, err := grpc.NewClient(addr, creds, grpc.WithIdleTimeout(0))
	if err != nil {
		return nil, fmt.Errorf("connection to %s failed: %w", addr, err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: d.cfg.HealthService})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connection to %s failed: health check: %w", addr, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		return nil, fmt.Errorf("connection to %s failed: node reports %s", addr, resp.GetStatus())
	}

	s := &session{
		conn:   conn,
		method: d.cfg.SubmitMethod,
		log:    slog.Default().With("component", "grpc-session"),
		done:   make(chan struct{}),
	}
	var watchCtx context.Context
	watchCtx, s.stopWatch = context.WithCancel(context.Background())
	go s.watch(watchCtx)

	s.log.Info("Connected to chain node", "endpoint", addr)
	return s, nil
}

type session struct {
	conn      *grpc.ClientConn
	method    string
	log       *slog.Logger
	stopWatch context.CancelFunc

	mu        sync.Mutex
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) SubmitProof(
	ctx context.Context,
	req *domain.SubmissionRequest,
	progress chain.ProgressFunc,
) (*domain.TxResult, error) {
	select {
	case <-s.done:
		return nil, fmt.Errorf("%w: %v", chain.ErrNotConnected, s.Err())
	default:
	}

	in, err := toStruct(chain.NewSubmitParams(req))
	if err != nil {
		return nil, fmt.Errorf("encode submission %s: %w", req.ID, err)
	}
	if progress != nil {
		progress(domain.TxProgress{Status: domain.TxStatusSubmitting})
	}

	out := &structpb.Struct{}
	start := time.Now()
	if err := s.conn.Invoke(ctx, s.method, in, out); err != nil {
		return nil, translate(err)
	}

	var reply chain.SubmitReply
	if err := fromStruct(out, &reply); err != nil {
		return nil, fmt.Errorf("decode submission reply: %w", err)
	}
	if reply.TxHash == "" {
		return nil, fmt.Errorf("submission reply for %s has no tx hash", req.ID)
	}

	s.log.Debug("Submission acknowledged", "request_id", req.ID, "tx_hash", reply.TxHash, "latency", time.Since(start))
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
	s.shutdown(errClosed)
	return nil
}

// watch reports the session lost once the channel leaves READY.
func (s *session) watch(ctx context.Context) {
	for {
		st := s.conn.GetState()
		if st != connectivity.Ready {
			s.shutdown(fmt.Errorf("connection state changed to %s", st))
			return
		}
		if !s.conn.WaitForStateChange(ctx, st) {
			return
		}
	}
}

func (s *session) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		close(s.done)
		s.mu.Unlock()

		s.stopWatch()
		_ = s.conn.Close()
		if !errors.Is(err, errClosed) {
			s.log.Warn("Chain session closed", "error", err)
		}
	})
}

// translate keeps the node's message for classification and names transport
// level codes in words the classifier understands.
func translate(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return fmt.Errorf("connection unavailable: %s: %w", st.Message(), err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("submission timeout: %w", err)
	default:
		return fmt.Errorf("%s: %w", st.Message(), err)
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
