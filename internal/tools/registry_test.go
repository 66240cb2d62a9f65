package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// stubTool is a minimal Tool for registry tests.
type stubTool struct {
	BaseTool
	result string
	err    error
}

func newStubTool(name string, result string, err error) *stubTool {
	return &stubTool{
		BaseTool: NewBaseTool(name, "stub tool", LocationHost, map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"input": map[string]interface{}{"type": "string"},
			},
			"required": []string{"input"},
		}),
		result: result,
		err:    err,
	}
}

func (t *stubTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	return t.result, t.err
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := newStubTool("alpha", "ok", nil)

	if err := r.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := r.Get("alpha"); got != tool {
		t.Errorf("Get() = %v, want registered tool", got)
	}
	if !r.Has("alpha") {
		t.Error("Has() = false, want true")
	}

	var exists ErrToolAlreadyExists
	if err := r.Register(newStubTool("alpha", "", nil)); !errors.As(err, &exists) {
		t.Errorf("duplicate Register() error = %v, want ErrToolAlreadyExists", err)
	}
}

func TestRegistryExecuteNotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute(context.Background(), "ghost", nil)
	var notFound ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Execute() error = %v, want ErrToolNotFound", err)
	}
	if notFound.Name != "ghost" {
		t.Errorf("Name = %q, want ghost", notFound.Name)
	}
}

func TestRegistryExecuteInvalidArguments(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newStubTool("alpha", "ok", nil))

	_, err := r.Execute(context.Background(), "alpha", map[string]interface{}{})
	var invalid ErrInvalidArguments
	if !errors.As(err, &invalid) {
		t.Fatalf("Execute() error = %v, want ErrInvalidArguments", err)
	}
	var execErr ErrToolExecution
	if errors.As(err, &execErr) {
		t.Error("invalid arguments must not surface as ErrToolExecution")
	}
}

func TestRegistryExecuteFailure(t *testing.T) {
	r := NewRegistry()
	cause := fmt.Errorf("backend exploded")
	r.MustRegister(newStubTool("alpha", "", cause))

	_, err := r.Execute(context.Background(), "alpha", map[string]interface{}{"input": "x"})
	var execErr ErrToolExecution
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want ErrToolExecution", err)
	}
	if !errors.Is(err, cause) {
		t.Error("ErrToolExecution does not wrap the cause")
	}
}

func TestRegistryExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newStubTool("alpha", "observation", nil))

	got, err := r.Execute(context.Background(), "alpha", map[string]interface{}{"input": "x"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "observation" {
		t.Errorf("Execute() = %q, want observation", got)
	}
}

func TestRegistryAllowList(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newStubTool("alpha", "a", nil))
	r.MustRegister(newStubTool("beta", "b", nil))
	r.MustRegister(newStubTool("gamma", "c", nil))

	r.SetEnabled([]string{"alpha", "gamma"})

	if got := r.List(); len(got) != 2 || got[0] != "alpha" || got[1] != "gamma" {
		t.Errorf("List() = %v, want [alpha gamma]", got)
	}
	if r.Has("beta") {
		t.Error("Has(beta) = true, want filtered out")
	}

	_, err := r.Execute(context.Background(), "beta", map[string]interface{}{"input": "x"})
	var notFound ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Execute(filtered) error = %v, want ErrToolNotFound", err)
	}

	if got := r.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}

	// empty list removes the filter
	r.SetEnabled(nil)
	if got := r.Count(); got != 3 {
		t.Errorf("Count() after reset = %d, want 3", got)
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newStubTool("zeta", "", nil))
	r.MustRegister(newStubTool("alpha", "", nil))

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("len(Definitions()) = %d, want 2", len(defs))
	}
	if defs[0].Function.Name != "alpha" || defs[1].Function.Name != "zeta" {
		t.Errorf("definition order = [%s %s], want sorted", defs[0].Function.Name, defs[1].Function.Name)
	}
}
