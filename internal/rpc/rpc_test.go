package rpc

import (
	"context"
	"encoding/json"
	"testing"
)

// scriptedCaller fails every call with the scripted errors until they run
// out, then succeeds.
type scriptedCaller struct {
	errs  []*Error
	calls []Args
}

func (c *scriptedCaller) CallProc(_ context.Context, _ string, args Args) (json.RawMessage, *Error) {
	c.calls = append(c.calls, args)
	if len(c.calls) <= len(c.errs) {
		return nil, c.errs[len(c.calls)-1]
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func TestInvokeFirstShapeWins(t *testing.T) {
	caller := &scriptedCaller{}
	descriptor := NewDescriptor("proc",
		Args{"a": 1},
		Args{"b": 1},
	)

	data, err := descriptor.Invoke(context.Background(), caller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("unexpected data: %s", data)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(caller.calls))
	}
}

func TestInvokeWalksPastSignatureMismatch(t *testing.T) {
	caller := &scriptedCaller{errs: []*Error{
		{Code: CodeSignatureMismatch, Message: "no such signature"},
		{Code: CodeUndefinedFunction, Message: "undefined"},
	}}
	descriptor := NewDescriptor("proc",
		Args{"a": 1},
		Args{"b": 1},
		Args{"c": 1},
	)

	_, err := descriptor.Invoke(context.Background(), caller)
	if err != nil {
		t.Fatalf("expected third shape to succeed, got %v", err)
	}
	if len(caller.calls) != 3 {
		t.Fatalf("expected three calls, got %d", len(caller.calls))
	}
	if _, ok := caller.calls[2]["c"]; !ok {
		t.Fatalf("expected third call with shape c, got %v", caller.calls[2])
	}
}

func TestInvokeStopsOnNonRetryableError(t *testing.T) {
	caller := &scriptedCaller{errs: []*Error{
		{Code: "23505", Message: "duplicate key"},
	}}
	descriptor := NewDescriptor("proc",
		Args{"a": 1},
		Args{"b": 1},
	)

	_, err := descriptor.Invoke(context.Background(), caller)
	if err == nil {
		t.Fatalf("expected the duplicate key error to surface")
	}
	if err.Code != "23505" {
		t.Fatalf("expected code 23505, got %s", err.Code)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected the walk to stop after one call, got %d", len(caller.calls))
	}
}

func TestInvokeExhaustionReturnsLastError(t *testing.T) {
	caller := &scriptedCaller{errs: []*Error{
		{Code: CodeSignatureMismatch, Message: "first"},
		{Code: CodeSignatureMismatch, Message: "second"},
	}}
	descriptor := NewDescriptor("proc",
		Args{"a": 1},
		Args{"b": 1},
	)

	_, err := descriptor.Invoke(context.Background(), caller)
	if err == nil {
		t.Fatalf("expected exhaustion to return an error")
	}
	if err.Message != "second" {
		t.Fatalf("expected last error, got %q", err.Message)
	}
	if len(caller.calls) != 2 {
		t.Fatalf("expected two calls, got %d", len(caller.calls))
	}
}

func TestInvokeWithoutShapes(t *testing.T) {
	caller := &scriptedCaller{}
	descriptor := NewDescriptor("proc")

	_, err := descriptor.Invoke(context.Background(), caller)
	if err == nil || err.Code != "RPC_NO_SHAPES" {
		t.Fatalf("expected RPC_NO_SHAPES, got %v", err)
	}
	if len(caller.calls) != 0 {
		t.Fatalf("expected no remote calls, got %d", len(caller.calls))
	}
}
