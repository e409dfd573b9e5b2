package session

import (
	"context"

	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
)

// SagaResult is the terminal state of a Saga run.
type SagaResult int

const (
	SagaOK SagaResult = iota
	SagaCompensated
	SagaRollbackFailed
)

func (r SagaResult) String() string {
	switch r {
	case SagaOK:
		return "ok"
	case SagaCompensated:
		return "compensated"
	case SagaRollbackFailed:
		return "rollback_failed"
	default:
		return "unknown"
	}
}

// Step is one forward action and its compensation. Undo may be nil when the
// step leaves nothing to remove.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// SagaOutcome describes how a run ended. Failed and Err are set unless Result is
// SagaOK; RollbackErr is set only for SagaRollbackFailed.
type SagaOutcome struct {
	Result      SagaResult
	Failed      string
	Err         error
	RollbackErr error
}

// Saga runs Steps in order. When a step fails, the steps that already succeeded
// are undone in reverse order.
type Saga struct {
	Steps []Step
}

// Run executes the saga. Every compensation is attempted even if an earlier one
// fails; their errors are joined into RollbackErr.
func (s *Saga) Run(ctx context.Context) SagaOutcome {
	for i, step := range s.Steps {
		err := step.Do(ctx)
		if err == nil {
			continue
		}
		out := SagaOutcome{Result: SagaCompensated, Failed: step.Name, Err: err}
		var rollback []error
		for j := i - 1; j >= 0; j-- {
			undo := s.Steps[j].Undo
			if undo == nil {
				continue
			}
			// Compensation runs even when ctx was cancelled mid-saga.
			if uerr := undo(context.WithoutCancel(ctx)); uerr != nil {
				rollback = append(rollback, uerr)
			}
		}
		if len(rollback) > 0 {
			out.Result = SagaRollbackFailed
			out.RollbackErr = errors.Join(rollback...)
		}
		return out
	}
	return SagaOutcome{Result: SagaOK}
}
