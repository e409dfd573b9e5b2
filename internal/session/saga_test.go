package session

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSaga_Run(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	undoFail := errors.New("undo failed")

	tests := []struct {
		name       string
		failAt     int // -1 for none
		undoErr    error
		want       SagaResult
		wantFailed string
		wantTrace  string
	}{
		{"all succeed", -1, nil, SagaOK, "", "do:a,do:b,do:c"},
		{"first fails", 0, nil, SagaCompensated, "a", "do:a"},
		{"last fails", 2, nil, SagaCompensated, "c", "do:a,do:b,do:c,undo:b,undo:a"},
		{"rollback fails", 1, undoFail, SagaRollbackFailed, "b", "do:a,do:b,undo:a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var trace []string
			mk := func(i int, name string) Step {
				return Step{
					Name: name,
					Do: func(context.Context) error {
						trace = append(trace, "do:"+name)
						if i == tt.failAt {
							return boom
						}
						return nil
					},
					Undo: func(context.Context) error {
						trace = append(trace, "undo:"+name)
						return tt.undoErr
					},
				}
			}
			s := &Saga{Steps: []Step{mk(0, "a"), mk(1, "b"), mk(2, "c")}}
			out := s.Run(context.Background())
			if out.Result != tt.want || out.Failed != tt.wantFailed {
				t.Fatalf("outcome: %+v", out)
			}
			if got := strings.Join(trace, ","); got != tt.wantTrace {
				t.Fatalf("trace: got %s, want %s", got, tt.wantTrace)
			}
			if tt.want != SagaOK && !errors.Is(out.Err, boom) {
				t.Fatalf("Err: %v", out.Err)
			}
			if tt.want == SagaRollbackFailed && !errors.Is(out.RollbackErr, undoFail) {
				t.Fatalf("RollbackErr: %v", out.RollbackErr)
			}
		})
	}
}

func TestSaga_nilUndoSkipped(t *testing.T) {
	t.Parallel()
	s := &Saga{Steps: []Step{
		{Name: "a", Do: func(context.Context) error { return nil }},
		{Name: "b", Do: func(context.Context) error { return errors.New("x") }},
	}}
	if out := s.Run(context.Background()); out.Result != SagaCompensated || out.RollbackErr != nil {
		t.Fatalf("got %+v", out)
	}
}

func TestSagaResult_String(t *testing.T) {
	t.Parallel()
	if SagaRollbackFailed.String() != "rollback_failed" || SagaResult(9).String() != "unknown" {
		t.Fatal("String")
	}
}
