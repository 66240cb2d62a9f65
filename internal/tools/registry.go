package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrToolNotFound is returned when a requested tool doesn't exist in the
// registry or is filtered out by the allow-list.
type ErrToolNotFound struct {
	Name string
}

func (e ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ErrToolAlreadyExists is returned when registering a duplicate name.
type ErrToolAlreadyExists struct {
	Name string
}

func (e ErrToolAlreadyExists) Error() string {
	return fmt.Sprintf("tool %q already exists", e.Name)
}

// ErrInvalidArguments is returned when a tool call's arguments fail
// schema validation. Distinct from ErrToolExecution: the tool never ran.
type ErrInvalidArguments struct {
	Name     string
	Problems []string
}

func (e ErrInvalidArguments) Error() string {
	return fmt.Sprintf("tool %q: invalid arguments: %s", e.Name, strings.Join(e.Problems, "; "))
}

// ErrToolExecution is returned when a tool ran and failed.
type ErrToolExecution struct {
	Name string
	Err  error
}

func (e ErrToolExecution) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Name, e.Err)
}

func (e ErrToolExecution) Unwrap() error {
	return e.Err
}

// Registry holds the tools available to one run. Registration happens at
// startup; afterwards the registry is only read, so the model can never
// see a tool set change mid-run. An optional allow-list restricts which
// registered tools are visible and callable.
type Registry struct {
	tools   map[string]Tool
	enabled map[string]bool // nil means all registered tools
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry with no allow-list.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. Returns ErrToolAlreadyExists on duplicate names.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return ErrToolAlreadyExists{Name: name}
	}
	r.tools[name] = t
	return nil
}

// MustRegister adds a tool, panicking on error. For startup wiring.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// SetEnabled installs the allow-list. Names not in the list behave as if
// they were never registered. An empty list removes the filter.
func (r *Registry) SetEnabled(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		r.enabled = nil
		return
	}
	r.enabled = make(map[string]bool, len(names))
	for _, name := range names {
		r.enabled[name] = true
	}
}

// visible reports whether a tool passes the allow-list. Caller holds a
// read lock.
func (r *Registry) visible(name string) bool {
	return r.enabled == nil || r.enabled[name]
}

// Get retrieves a visible tool by name, nil if absent or filtered.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.visible(name) {
		return nil
	}
	return r.tools[name]
}

// Has checks whether a visible tool with the given name exists.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Execute validates arguments against the tool's schema and dispatches.
// The error type tells the caller what happened: ErrToolNotFound (no such
// tool), ErrInvalidArguments (never ran) or ErrToolExecution (ran and
// failed).
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	if ok && !r.visible(name) {
		ok = false
	}
	r.mu.RUnlock()

	if !ok {
		return "", ErrToolNotFound{Name: name}
	}

	if problems := ValidateParams(params, tool.Parameters()); len(problems) > 0 {
		return "", ErrInvalidArguments{Name: name, Problems: problems}
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return "", ErrToolExecution{Name: name, Err: err}
	}
	return result, nil
}

// Definitions returns the visible tools in OpenAI function-calling
// format, sorted by name for stable prompts.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.visibleNames()
	definitions := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		definitions = append(definitions, ToDefinition(r.tools[name]))
	}
	return definitions
}

// List returns the sorted names of all visible tools.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visibleNames()
}

// visibleNames returns sorted visible tool names. Caller holds a read lock.
func (r *Registry) visibleNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if r.visible(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of visible tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for name := range r.tools {
		if r.visible(name) {
			n++
		}
	}
	return n
}
