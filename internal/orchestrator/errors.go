package orchestrator

import (
	"fmt"
	"strings"

	"github.com/nulzo/content-orchestrator/internal/routing"
)

// FailureKind classifies why a candidate did not produce a result.
type FailureKind string

const (
	FailureBudget      FailureKind = "budget"
	FailureCircuitOpen FailureKind = "circuit_open"
	FailureProvider    FailureKind = "provider"
	FailureUnavailable FailureKind = "unavailable"
	FailureUnsupported FailureKind = "unsupported"
)

// CandidateFailure is the reason one candidate was skipped or failed.
type CandidateFailure struct {
	Candidate routing.Candidate `json:"candidate"`
	Kind      FailureKind       `json:"kind"`
	Reason    string            `json:"reason"`
	Attempts  int               `json:"attempts,omitempty"`
	Err       error             `json:"-"`
}

func (f CandidateFailure) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.Candidate, f.Reason, f.Kind)
}

// ChainExhausted is returned when every candidate of a route failed.
type ChainExhausted struct {
	TaskType string
	Failures []CandidateFailure
}

func (e *ChainExhausted) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("all providers failed for task %s: no candidates", e.TaskType)
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("all providers failed for task %s: %s", e.TaskType, strings.Join(parts, "; "))
}

// Unwrap exposes the individual candidate errors to errors.Is.
func (e *ChainExhausted) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// BudgetOnly reports whether every candidate was rejected by admission control.
func (e *ChainExhausted) BudgetOnly() bool {
	if len(e.Failures) == 0 {
		return false
	}
	for _, f := range e.Failures {
		if f.Kind != FailureBudget {
			return false
		}
	}
	return true
}
