// Package dag builds the execution graph of a resolved plan from per-step
// metadata and assigns a deterministic execution order.
package dag

import (
	"time"

	"goa.design/maestro/runtime/action"
)

// Metadata is the scheduling-relevant description of one executable step.
// It is an immutable value, serializable as JSON, derived from the action
// descriptor and the plan step.
type Metadata struct {
	// StepID uniquely names the step within the plan.
	StepID string `json:"stepId"`
	// ActionName is the registered action id behind the step.
	ActionName string `json:"actionName"`
	// AffinityIDs are the resolved affinity tags.
	AffinityIDs []string `json:"affinityIds,omitempty"`
	// Mutability mirrors the descriptor.
	Mutability action.Mutability `json:"mutability"`
	// ResourceReads and ResourceWrites are advisory resource
	// declarations used by parallel scheduling.
	ResourceReads  []string `json:"resourceReads,omitempty"`
	ResourceWrites []string `json:"resourceWrites,omitempty"`
	// RequiresContext lists context keys the step consumes.
	RequiresContext []string `json:"requiresContext,omitempty"`
	// ProducesContext lists context keys the step writes.
	ProducesContext []string `json:"producesContext,omitempty"`
	// DependsOn lists explicit prerequisite step ids.
	DependsOn []string `json:"dependsOn,omitempty"`
	// Cost is the relative execution cost.
	Cost int `json:"cost"`
	// Priority orders ready steps under priority scheduling.
	Priority int `json:"priority,omitempty"`
	// Timeout bounds one invocation, zero for none.
	Timeout time.Duration `json:"timeout,omitempty"`
	// MaxRetries bounds retries after the first attempt.
	MaxRetries int `json:"maxRetries,omitempty"`
	// Idempotent permits retries on transient failures.
	Idempotent bool `json:"idempotent,omitempty"`
}
