package chain

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/relay/failure"
)

// SessionProvider lends out the live session and accepts disconnect reports.
type SessionProvider interface {
	Session() (Session, error)
	ReportDisconnect(reason error)
}

// Submitter submits proofs over whatever session the provider currently holds.
type Submitter struct {
	sessions    SessionProvider
	explorerURL string
	log         *slog.Logger
}

// NewSubmitter creates a submitter. explorerURL may be empty.
func NewSubmitter(sessions SessionProvider, explorerURL string) *Submitter {
	return &Submitter{
		sessions:    sessions,
		explorerURL: strings.TrimRight(explorerURL, "/"),
		log:         slog.Default().With("component", "submitter"),
	}
}

// Submit borrows the session for a single call. Network failures are
// reported back to the provider so it can reconnect.
func (s *Submitter) Submit(ctx context.Context, req *domain.SubmissionRequest, progress ProgressFunc) (*domain.TxResult, error) {
	sess, err := s.sessions.Session()
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(domain.TxProgress) {}
	}

	res, err := sess.SubmitProof(ctx, req, progress)
	if err != nil {
		if failure.Classify(err).Category == failure.CategoryNetwork {
			s.log.Warn("Network failure during submission", "request_id", req.ID, "error", err)
			s.sessions.ReportDisconnect(err)
		}
		return nil, err
	}

	if res.ExplorerURL == "" && s.explorerURL != "" && res.TxHash != "" {
		res.ExplorerURL = s.explorerURL + "/" + res.TxHash
	}
	return res, nil
}
