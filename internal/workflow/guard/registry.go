// Package guard holds the named predicates that gate transitions.
//
// Guards are pure: they read only the snapshot they are given, never block and
// never mutate it. A guard missing the data it depends on fails closed with a
// reason suitable for direct display.
package guard

import (
	"errors"
	"sort"
	"sync"

	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/stage"
	dErrors "transferdesk/pkg/domain-errors"
)

// ErrUnknownGuard is returned for a guard name that is not registered.
// It is a configuration error, never a per-request failure.
var ErrUnknownGuard = errors.New("unknown guard")

// Decision is the outcome of a guard. Reason is empty only when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the passing decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny fails with a display-ready reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Guard decides whether a transition may fire for a case.
type Guard interface {
	Evaluate(snap *models.Snapshot) Decision
}

// Func adapts a plain function to Guard.
type Func func(snap *models.Snapshot) Decision

func (f Func) Evaluate(snap *models.Snapshot) Decision { return f(snap) }

// Registry maps guard names to guards. Registration happens at startup;
// evaluation is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	guards map[string]Guard
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{guards: make(map[string]Guard)}
}

// Register adds a guard. Re-registering a name is a configuration error.
func (r *Registry) Register(name string, g Guard) error {
	if name == "" || g == nil {
		return dErrors.New(dErrors.CodeConfiguration, "guard name and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.guards[name]; dup {
		return dErrors.Newf(dErrors.CodeConfiguration, "guard %s registered twice", name)
	}
	r.guards[name] = g
	return nil
}

// Evaluate runs the named guard. The only error is ErrUnknownGuard wrapped
// with CodeConfiguration.
func (r *Registry) Evaluate(name string, snap *models.Snapshot) (Decision, error) {
	r.mu.RLock()
	g, ok := r.guards[name]
	r.mu.RUnlock()
	if !ok {
		return Decision{}, dErrors.Wrap(ErrUnknownGuard, dErrors.CodeConfiguration, "guard "+name+" is not registered")
	}
	if snap == nil {
		return Deny("Case details are not available"), nil
	}
	return g.Evaluate(snap), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.guards[name]
	return ok
}

// Names returns the registered guard names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.guards))
	for name := range r.guards {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every transition of the graph names a registered
// guard. Startup must abort on error.
func (r *Registry) Validate(g *stage.Graph) error {
	var missing []string
	seen := make(map[string]struct{})
	for _, t := range g.Transitions() {
		if r.Has(t.Guard) {
			continue
		}
		if _, dup := seen[t.Guard]; dup {
			continue
		}
		seen[t.Guard] = struct{}{}
		missing = append(missing, t.Guard)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return dErrors.Wrap(ErrUnknownGuard, dErrors.CodeConfiguration, "transitions reference unregistered guards "+joinComma(missing))
	}
	return nil
}
