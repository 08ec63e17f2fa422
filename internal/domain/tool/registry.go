package tool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrRegistryFrozen is returned when Register is called after Freeze.
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// Registry maps tool names to descriptors. All registration happens at
// startup; after Freeze the registry is read-only and safe for
// unsynchronized concurrent reads.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	tools  map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Descriptor),
	}
}

// Register adds a descriptor. It fails with ErrDuplicateTool if the name
// is already taken and ErrRegistryFrozen after Freeze. Descriptors with
// an empty name or nil handler are rejected at startup rather than at
// call time.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return errors.New("tool name is empty")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %s has no handler", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %s", ErrRegistryFrozen, d.Name)
	}
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
	}
	r.tools[d.Name] = &d
	return nil
}

// MustRegister registers a descriptor and panics on failure. Intended for
// startup wiring where a registration error is a programming mistake.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Freeze marks the end of registration. Subsequent Register calls fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve looks up a descriptor by name. The boolean is false for
// unregistered names.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	// No lock: the map is never mutated after Freeze, and transports only
	// dispatch once the registry is frozen.
	d, ok := r.tools[name]
	return d, ok
}

// Descriptors returns all registered descriptors sorted by name, for
// tools/list responses.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
