package dag

import (
	"fmt"
	"strings"
)

// Stable error codes surfaced by graph construction.
const (
	CodeDuplicateStep        = "DuplicateStepId"
	CodeInvalidStep          = "InvalidStepId"
	CodeUnknownDependency    = "UnknownDependency"
	CodeSelfDependency       = "SelfDependency"
	CodeContextContradiction = "ContextContradiction"
	CodeCycle                = "CycleDetected"
)

type (
	// DuplicateStepError reports two steps sharing one id.
	DuplicateStepError struct {
		StepID string
	}

	// InvalidStepError reports a step without an id.
	InvalidStepError struct {
		Index int
	}

	// UnknownDependencyError reports an explicit dependency on a step
	// absent from the plan.
	UnknownDependencyError struct {
		StepID string
		Target string
	}

	// SelfDependencyError reports a step depending on itself.
	SelfDependencyError struct {
		StepID string
	}

	// ContextContradictionError reports an explicit dependency that
	// inverts context dataflow: the step produces a key its declared
	// prerequisite requires.
	ContextContradictionError struct {
		StepID string
		Target string
		Key    string
	}

	// CycleError reports that the graph has no topological order.
	// Remaining lists the step ids left unordered, sorted.
	CycleError struct {
		Remaining []string
	}
)

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("duplicate step id %q", e.StepID)
}

// Code returns CodeDuplicateStep.
func (e *DuplicateStepError) Code() string { return CodeDuplicateStep }

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("step %d has an empty step id", e.Index)
}

// Code returns CodeInvalidStep.
func (e *InvalidStepError) Code() string { return CodeInvalidStep }

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on unknown step %q", e.StepID, e.Target)
}

// Code returns CodeUnknownDependency.
func (e *UnknownDependencyError) Code() string { return CodeUnknownDependency }

func (e *SelfDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on itself", e.StepID)
}

// Code returns CodeSelfDependency.
func (e *SelfDependencyError) Code() string { return CodeSelfDependency }

func (e *ContextContradictionError) Error() string {
	return fmt.Sprintf("explicit dependency %q -> %q contradicts context flow: %q requires key %q produced by %q",
		e.StepID, e.Target, e.Target, e.Key, e.StepID)
}

// Code returns CodeContextContradiction.
func (e *ContextContradictionError) Code() string { return CodeContextContradiction }

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected among steps: %s", strings.Join(e.Remaining, ", "))
}

// Code returns CodeCycle.
func (e *CycleError) Code() string { return CodeCycle }
