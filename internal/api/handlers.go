package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/relay/failure"
	"github.com/vietddude/zkrelay/internal/relay/queue"
)

const maxBodyBytes = 1 << 20

type verifyRequest struct {
	Proof         json.RawMessage `json:"proof"`
	PublicSignals []string        `json:"publicSignals"`
	Network       domain.Network  `json:"network"`
}

type verifyResponse struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"txHash"`
	BlockHash   string `json:"blockHash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Category  string `json:"category"`
	Retryable bool   `json:"retryable"`
}

type healthResponse struct {
	Status     string                 `json:"status"`
	Connection domain.ConnectionState `json:"connection"`
	Attempts   int                    `json:"attempts"`
	LastError  string                 `json:"last_error,omitempty"`
	Queue      domain.QueueStatus     `json:"queue"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, failure.Validation("invalid request body: %v", err))
		return
	}

	res, err := s.relay.Submit(r.Context(), queue.SubmitInput{
		Proof:         req.Proof,
		PublicSignals: req.PublicSignals,
		VK:            s.vk,
		Network:       req.Network,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Success:     res.Success,
		TxHash:      res.TxHash,
		BlockHash:   res.BlockHash,
		ExplorerURL: res.ExplorerURL,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.conn.Stats()
	resp := healthResponse{
		Status:     "healthy",
		Connection: stats.State,
		Attempts:   stats.Attempts,
		LastError:  stats.LastError,
		Queue:      s.relay.Status(),
	}

	code := http.StatusOK
	switch {
	case stats.State.IsTerminal():
		resp.Status = "critical"
		code = http.StatusServiceUnavailable
	case stats.State != domain.ConnStateConnected:
		resp.Status = "degraded"
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Status())
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	res := s.relay.ClearQueue()
	writeJSON(w, http.StatusOK, map[string]any{
		"cleared":            res.Cleared,
		"active_interrupted": res.ActiveInterrupted,
	})
}

// writeError maps queue sentinels and classified failures to a status code.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var code int

	var fe *failure.Error
	switch {
	case errors.Is(err, queue.ErrShuttingDown):
		code = http.StatusServiceUnavailable
		resp.Category = "ShuttingDown"
		resp.Retryable = true
	case errors.Is(err, queue.ErrTimeout):
		code = http.StatusGatewayTimeout
		resp.Category = "Timeout"
		resp.Retryable = true
	case errors.Is(err, queue.ErrCleared):
		code = http.StatusServiceUnavailable
		resp.Category = "Cleared"
		resp.Retryable = true
	case errors.As(err, &fe):
		code = fe.Category.HTTPStatus()
		resp.Category = string(fe.Category)
		resp.Retryable = fe.Category.RetryableByCaller()
	default:
		code = http.StatusInternalServerError
		resp.Category = string(failure.CategoryUnknown)
	}

	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
