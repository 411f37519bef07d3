package interfaces

import "sort"

// Scope maps environment variable names to configuration values. Values are
// whatever the descriptor decoder produced: strings, numbers, booleans, nested
// maps. A nil Scope means the scope is absent from the descriptor.
type Scope map[string]any

// ConfigurationTree is the environment-bearing part of a deployment descriptor:
// one shared scope and one scope per unit (function). Scopes are views into the
// descriptor document, so writing to them mutates the document.
type ConfigurationTree struct {
	// Shared is the provider-level environment, nil when absent.
	Shared Scope
	// Units maps unit names to their environment. A unit without an
	// environment is present with a nil Scope.
	Units map[string]Scope
}

// SharedScopeName is used when reporting errors and metrics for the shared scope.
const SharedScopeName = "provider"

// UnitNames returns the unit names in lexical order.
func (t *ConfigurationTree) UnitNames() []string {
	names := make([]string, 0, len(t.Units))
	for name := range t.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unit returns the scope of the named unit and whether the unit exists.
func (t *ConfigurationTree) Unit(name string) (Scope, bool) {
	scope, ok := t.Units[name]
	return scope, ok
}
