// Package rpc invokes remote procedures on the managed backend through an
// ordered list of candidate parameter shapes. The backend's argument names
// are not versioned from this side, so each logical call carries the spellings
// observed in the field and walks them until one matches. This is a
// compatibility shim, not a retry policy: only signature-mismatch codes are
// retried, and attempts are strictly sequential.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Args is one candidate mapping of logical parameters to the argument names
// expected by a remote procedure.
type Args map[string]any

// Error is a structured backend error. Code carries the backend's own error
// code (for example PGRST202 for a schema-cache signature miss, or the
// SQLSTATE 42883 for an undefined function).
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Caller executes a single remote procedure call. Implementations live in
// internal/backend.
type Caller interface {
	CallProc(ctx context.Context, procedure string, args Args) (json.RawMessage, *Error)
}

// Signature-mismatch codes observed from the backend. PGRST202 is the REST
// layer's missing-function-in-schema-cache code; 42883 is the SQLSTATE for
// an undefined function when calling over a direct connection.
const (
	CodeSignatureMismatch = "PGRST202"
	CodeUndefinedFunction = "42883"
)

func defaultRetryable() map[string]bool {
	return map[string]bool{
		CodeSignatureMismatch: true,
		CodeUndefinedFunction: true,
	}
}

// Descriptor is one logical remote call: the procedure name, the ordered
// candidate shapes, and the set of codes that allow moving on to the next
// shape. Descriptors are built per request and discarded after the first
// success or exhaustion.
type Descriptor struct {
	Procedure string
	Shapes    []Args
	Retryable map[string]bool
}

// NewDescriptor builds a descriptor with the default retryable code set.
func NewDescriptor(procedure string, shapes ...Args) Descriptor {
	return Descriptor{
		Procedure: procedure,
		Shapes:    shapes,
		Retryable: defaultRetryable(),
	}
}

// Invoke walks the shapes in order. The first successful call wins and its
// data is returned; a non-retryable error stops the walk immediately; if every
// shape fails with a retryable code, the last error is returned. Each attempt
// is an independent remote call, so the target procedure must be safe to call
// more than once with equivalent arguments.
func (d Descriptor) Invoke(ctx context.Context, caller Caller) (json.RawMessage, *Error) {
	if len(d.Shapes) == 0 {
		return nil, &Error{Code: "RPC_NO_SHAPES", Message: fmt.Sprintf("no parameter shapes for %s", d.Procedure)}
	}

	var lastErr *Error
	for _, shape := range d.Shapes {
		data, err := caller.CallProc(ctx, d.Procedure, shape)
		if err == nil {
			return data, nil
		}

		lastErr = err
		if !d.Retryable[err.Code] {
			break
		}
	}
	return nil, lastErr
}
