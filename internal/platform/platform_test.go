package platform

import (
	"context"
	"errors"
	"testing"
)

func TestFunctionTable(t *testing.T) {
	table := NewFunctionTable()
	table.Register("create_object", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"id": "o1", "name": args["name"]}, nil
	})
	table.Register("create_field", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("object not found")
	})

	resp, err := table.Execute(context.Background(), "create_object", map[string]any{"name": "Invoice"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.(map[string]any)["name"] != "Invoice" {
		t.Errorf("unexpected response: %v", resp)
	}

	if _, err := table.Execute(context.Background(), "create_field", nil); err == nil {
		t.Error("handler error should be returned")
	}

	_, err = table.Execute(context.Background(), "delete_everything", nil)
	if !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("expected ErrUnknownFunction, got %v", err)
	}

	names := table.Names()
	if len(names) != 2 || names[0] != "create_field" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestDryRunClient(t *testing.T) {
	c := NewDryRunClient()

	first, err := c.Execute(context.Background(), "create_object", map[string]any{"name": "Invoice"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	second, _ := c.Execute(context.Background(), "create_field", map[string]any{"object": "Invoice"})

	r1 := first.(map[string]any)
	r2 := second.(map[string]any)
	if r1["id"] == "" || r1["id"] == r2["id"] {
		t.Errorf("expected distinct ids, got %v and %v", r1["id"], r2["id"])
	}
	if r1["name"] != "Invoice" || r1["function"] != "create_object" {
		t.Errorf("unexpected response: %v", r1)
	}
	if _, ok := r2["name"]; ok {
		t.Error("name should only be echoed when given")
	}

	calls := c.Calls()
	if len(calls) != 2 || calls[1].FunctionName != "create_field" {
		t.Errorf("unexpected recorded calls: %+v", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Execute(ctx, "create_object", nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}
