package resolver

import (
	"fmt"
	"os"
	"sort"

	"github.com/ruteri/kms-env-resolver/interfaces"
)

// ProjectToProcessEnvironment copies the shared scope and then the named
// unit's scope into sink, so unit values win on name collisions. It performs
// no decryption and expects the tree to be resolved already. Absent scopes,
// including the scope of an undeclared unit, are skipped.
func ProjectToProcessEnvironment(tree *interfaces.ConfigurationTree, unit string, sink interfaces.EnvironmentSink) error {
	if tree == nil {
		return nil
	}

	if err := projectScope(tree.Shared, sink); err != nil {
		return fmt.Errorf("shared scope: %w", err)
	}

	scope, _ := tree.Unit(unit)
	if err := projectScope(scope, sink); err != nil {
		return fmt.Errorf("unit %s: %w", unit, err)
	}
	return nil
}

func projectScope(scope interfaces.Scope, sink interfaces.EnvironmentSink) error {
	names := make([]string, 0, len(scope))
	for name := range scope {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := sink.Setenv(name, envString(scope[name])); err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
	}
	return nil
}

func envString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// OSEnvironment writes to the environment of the current process.
type OSEnvironment struct{}

// Setenv sets name in the process environment.
func (OSEnvironment) Setenv(name, value string) error {
	return os.Setenv(name, value)
}

// MapEnvironment collects projected variables in memory.
type MapEnvironment map[string]string

// Setenv records name, replacing any earlier value.
func (m MapEnvironment) Setenv(name, value string) error {
	m[name] = value
	return nil
}

// Environ returns the variables in "name=value" form, sorted by name.
func (m MapEnvironment) Environ() []string {
	env := make([]string, 0, len(m))
	for name, value := range m {
		env = append(env, name+"="+value)
	}
	sort.Strings(env)
	return env
}
