// Package platform executes tool calls against the target application platform.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownFunction indicates a tool call names a function the client does not offer.
var ErrUnknownFunction = errors.New("unknown platform function")

// Client executes one named function with arguments and returns its response.
type Client interface {
	Execute(ctx context.Context, functionName string, args map[string]any) (any, error)
}

// Handler implements one platform function.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// FunctionTable is a Client dispatching by function name.
type FunctionTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

var _ Client = (*FunctionTable)(nil)

// NewFunctionTable creates an empty table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{handlers: make(map[string]Handler)}
}

// Register binds a handler to a function name, replacing any previous one.
func (t *FunctionTable) Register(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = h
}

// Names returns the registered function names, sorted.
func (t *FunctionTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements Client.
func (t *FunctionTable) Execute(ctx context.Context, functionName string, args map[string]any) (any, error) {
	t.mu.RLock()
	h, ok := t.handlers[functionName]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, functionName)
	}
	return h(ctx, args)
}

// Call is one recorded DryRunClient invocation.
type Call struct {
	FunctionName string
	Arguments    map[string]any
	Response     map[string]any
}

// DryRunClient accepts every call without side effects and returns a
// synthetic entity id, so a whole run can be rehearsed.
type DryRunClient struct {
	mu    sync.Mutex
	calls []Call
}

var _ Client = (*DryRunClient)(nil)

// NewDryRunClient creates a dry-run client.
func NewDryRunClient() *DryRunClient {
	return &DryRunClient{}
}

// Execute implements Client.
func (c *DryRunClient) Execute(ctx context.Context, functionName string, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := map[string]any{
		"id":       uuid.NewString(),
		"function": functionName,
	}
	if name, ok := args["name"]; ok {
		resp["name"] = name
	}

	c.mu.Lock()
	c.calls = append(c.calls, Call{FunctionName: functionName, Arguments: args, Response: resp})
	c.mu.Unlock()
	return resp, nil
}

// Calls returns the recorded calls in execution order.
func (c *DryRunClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}
