package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stable error codes surfaced during plan execution.
const (
	CodeActionTimeout     = "ActionTimeout"
	CodeCancelled         = "Cancelled"
	CodeContractViolation = "ContractViolation"
	CodeInvocationFailed  = "ActionInvocationFailed"
	CodePlanFailed        = "PlanExecutionFailed"
)

type (
	// TimeoutError reports an invocation aborted by the action's timeout.
	TimeoutError struct {
		StepID   string
		ActionID string
		Timeout  time.Duration
	}

	// CancelledError reports an invocation aborted by run cancellation.
	// Cancellation is never retried.
	CancelledError struct {
		StepID string
	}

	// ContractError reports an action that completed without writing
	// every context key it declares.
	ContractError struct {
		StepID   string
		ActionID string
		Missing  []string
	}

	// InvocationError wraps a handler failure with its step.
	InvocationError struct {
		StepID   string
		ActionID string
		Attempt  int
		Cause    error
	}

	// PlanError is the terminal failure of a run. It wraps the causing
	// error with enough diagnostics to reproduce the step.
	PlanError struct {
		RunID       string
		StepID      string
		ActionName  string
		ArgsSummary string
		Cause       error
	}
)

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %q: action %q timed out after %v", e.StepID, e.ActionID, e.Timeout)
}

// Code returns CodeActionTimeout.
func (e *TimeoutError) Code() string { return CodeActionTimeout }

// Unwrap returns context.DeadlineExceeded so timeout classification
// composes with errors.Is.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

func (e *CancelledError) Error() string {
	return fmt.Sprintf("step %q cancelled", e.StepID)
}

// Code returns CodeCancelled.
func (e *CancelledError) Code() string { return CodeCancelled }

// Unwrap returns context.Canceled.
func (e *CancelledError) Unwrap() error { return context.Canceled }

func (e *ContractError) Error() string {
	return fmt.Sprintf("step %q: action %q did not write declared context keys: %s",
		e.StepID, e.ActionID, strings.Join(e.Missing, ", "))
}

// Code returns CodeContractViolation.
func (e *ContractError) Code() string { return CodeContractViolation }

func (e *InvocationError) Error() string {
	return fmt.Sprintf("step %q: action %q failed on attempt %d: %v", e.StepID, e.ActionID, e.Attempt, e.Cause)
}

// Code returns CodeInvocationFailed.
func (e *InvocationError) Code() string { return CodeInvocationFailed }

func (e *InvocationError) Unwrap() error { return e.Cause }

func (e *PlanError) Error() string {
	msg := fmt.Sprintf("plan execution failed at step %q (action %q", e.StepID, e.ActionName)
	if e.ArgsSummary != "" {
		msg += ", args " + e.ArgsSummary
	}
	return msg + "): " + e.Cause.Error()
}

// Code returns CodePlanFailed.
func (e *PlanError) Code() string { return CodePlanFailed }

func (e *PlanError) Unwrap() error { return e.Cause }

// reason extracts the most specific stable error code in err's chain for
// event payloads and metrics tags. Wrappers such as PlanError carry their
// own code, so the deepest coded error wins.
func reason(err error) string {
	code := ""
	for err != nil {
		if c, ok := err.(interface{ Code() string }); ok {
			code = c.Code()
		}
		err = errors.Unwrap(err)
	}
	if code == "" {
		return CodeInvocationFailed
	}
	return code
}
