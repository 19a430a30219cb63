package check

import (
	"context"
	"sort"

	"github.com/teranos/dcheck/errors"
)

// Validator is the capability every validation module implements.
// The orchestrator treats implementations as opaque and interchangeable.
//
// Run inspects one table and reports findings. Returning an error means the
// module could not do its job (connection lost, bad config); the orchestrator
// records it as a fail-severity capability fault for that table, it never
// crashes the run. Implementations should honour ctx: the orchestrator bounds
// every call with the configured module timeout.
type Validator interface {
	// Name returns the module name used in plans (e.g., "core_quality").
	Name() string

	// Run validates the table identified by tableID with this module's config.
	Run(ctx context.Context, tableID string, config map[string]any) ([]Finding, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc struct {
	ModuleName string
	Fn         func(ctx context.Context, tableID string, config map[string]any) ([]Finding, error)
}

// Name implements Validator
func (v ValidatorFunc) Name() string { return v.ModuleName }

// Run implements Validator
func (v ValidatorFunc) Run(ctx context.Context, tableID string, config map[string]any) ([]Finding, error) {
	return v.Fn(ctx, tableID, config)
}

// Registry maps module names to validators.
//
// A Registry is built once per process with NewRegistry and is immutable
// afterwards, so it can be shared without locking.
type Registry struct {
	validators map[string]Validator
	names      []string
}

// NewRegistry creates a registry from the given validators.
// Empty or duplicate names are rejected.
func NewRegistry(validators ...Validator) (*Registry, error) {
	r := &Registry{
		validators: make(map[string]Validator, len(validators)),
		names:      make([]string, 0, len(validators)),
	}
	for _, v := range validators {
		if v == nil {
			return nil, errors.New("nil validator")
		}
		name := v.Name()
		if name == "" {
			return nil, errors.New("validator has empty name")
		}
		if _, exists := r.validators[name]; exists {
			return nil, errors.Newf("validator already registered for name: %s", name)
		}
		r.validators[name] = v
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get retrieves the validator for a module name.
// Returns nil if no validator is registered.
func (r *Registry) Get(name string) Validator {
	if r == nil {
		return nil
	}
	return r.validators[name]
}

// Has checks if a validator is registered for a name.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns all registered module names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
