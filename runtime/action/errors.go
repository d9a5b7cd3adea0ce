package action

import (
	"fmt"
	"strings"
)

// Stable error codes surfaced by this package. Run logs and events carry
// them verbatim.
const (
	CodeUnknownAction   = "UnknownAction"
	CodeDuplicateAction = "DuplicateActionId"
	CodeMissingArgument = "MissingArgument"
	CodeMissingContext  = "MissingContext"
	CodeDeserialization = "DeserializationFailed"
	CodeContextType     = "ContextTypeError"
)

type (
	// UnknownActionError reports a lookup of an unregistered action id.
	UnknownActionError struct {
		ID ID
	}

	// DuplicateActionError reports a second registration of an action id.
	DuplicateActionError struct {
		ID ID
	}

	// MissingArgumentError reports a required parameter absent from the
	// step's JSON parameters.
	MissingArgumentError struct {
		Param    string
		ActionID ID
	}

	// MissingContextError reports a fromContext binding whose key is
	// absent from the execution context, or present with an unusable
	// type (Cause then holds the TypeError).
	MissingContextError struct {
		Key      string
		Param    string
		ActionID ID
		Cause    error
	}

	// TypeError reports a typed context read whose stored value has a
	// different type than requested.
	TypeError struct {
		Key  string
		Want string
		Got  string
	}

	// FieldError describes one argument that failed to bind.
	FieldError struct {
		Param   string
		Message string
	}

	// BindError aggregates the field errors of a bind pass together with
	// the raw step parameters, so callers can log exactly what the model
	// produced.
	BindError struct {
		ActionID ID
		Fields   []FieldError
		Raw      []byte
	}
)

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.ID)
}

// Code returns CodeUnknownAction.
func (e *UnknownActionError) Code() string { return CodeUnknownAction }

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action %q already registered", e.ID)
}

// Code returns CodeDuplicateAction.
func (e *DuplicateActionError) Code() string { return CodeDuplicateAction }

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("action %q: missing argument %q", e.ActionID, e.Param)
}

// Code returns CodeMissingArgument.
func (e *MissingArgumentError) Code() string { return CodeMissingArgument }

func (e *MissingContextError) Error() string {
	msg := fmt.Sprintf("action %q: parameter %q: missing context key %q", e.ActionID, e.Param, e.Key)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Code returns CodeMissingContext.
func (e *MissingContextError) Code() string { return CodeMissingContext }

func (e *MissingContextError) Unwrap() error { return e.Cause }

func (e *TypeError) Error() string {
	return fmt.Sprintf("context key %q holds %s, not %s", e.Key, e.Got, e.Want)
}

// Code returns CodeContextType.
func (e *TypeError) Code() string { return CodeContextType }

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

func (e *BindError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("action %q: %d invalid argument(s): %s", e.ActionID, len(e.Fields), strings.Join(parts, "; "))
}

// Code returns CodeDeserialization.
func (e *BindError) Code() string { return CodeDeserialization }
