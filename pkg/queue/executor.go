package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/equityresearch/pkg/research"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// ResearchExecutor implements SessionExecutor on top of the research engine.
type ResearchExecutor struct {
	engine *research.Engine
}

// NewResearchExecutor creates a new session executor.
func NewResearchExecutor(engine *research.Engine) *ResearchExecutor {
	return &ResearchExecutor{engine: engine}
}

// Execute runs the pipeline for the session's kind. The session is the
// pipeline's tracker: progress lands in its channel and its cancel flag is
// polled at every checkpoint.
func (e *ResearchExecutor) Execute(ctx context.Context, s *session.Session) *ExecutionResult {
	req := s.Request

	var (
		report any
		err    error
	)
	switch req.Kind {
	case session.KindStock:
		report, err = e.engine.ResearchStock(ctx, s, s.ID, req.Subject, req.Exchange)
	case session.KindSector:
		report, err = e.engine.ResearchSector(ctx, s, s.ID, req.Subject, req.Exchange, req.NumCompanies)
	default:
		err = fmt.Errorf("unknown research type %q", req.Kind)
	}

	switch {
	case err == nil:
		return &ExecutionResult{Status: session.StatusComplete, Report: report}
	case research.IsCancellation(err):
		return &ExecutionResult{Status: session.StatusCancelled, Error: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ExecutionResult{Status: session.StatusTimedOut, Error: err}
	default:
		return &ExecutionResult{Status: session.StatusError, Error: err}
	}
}
