// Package plugin binds secret resolution to deployment lifecycle hooks.
//
// Hooks that precede packaging, deployment, local invocation and offline
// emulation resolve the whole configuration tree. The local invocation hook
// additionally projects the selected function's environment into the process
// environment. The host decides when hooks fire; Run only dispatches.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ruteri/kms-env-resolver/interfaces"
	"github.com/ruteri/kms-env-resolver/resolver"
)

// Lifecycle hook names.
const (
	HookBeforeDeployFunctions       = "before:deploy:functions"
	HookCreateDeploymentArtifacts   = "package:createDeploymentArtifacts"
	HookBeforeDeployFunctionPackage = "before:deploy:function:packageFunction"
	HookBeforeInvokeLocal           = "before:invoke:local:invoke"
	HookBeforeInvokeLocalLoadEnv    = "before:invoke:local:loadEnvVars"
	HookBeforeOfflineStart          = "before:offline:start"
	HookBeforeOfflineStartInit      = "before:offline:start:init"
)

// HookFunc is the action bound to a lifecycle hook.
type HookFunc func(ctx context.Context) error

// TreeResolver resolves a configuration tree in place.
type TreeResolver interface {
	ResolveTree(ctx context.Context, tree *interfaces.ConfigurationTree) error
}

// Options selects what the hooks act on.
type Options struct {
	// Function is the unit targeted by local invocation.
	Function string
}

// Plugin holds the tree and collaborators shared by all hooks.
type Plugin struct {
	tree     *interfaces.ConfigurationTree
	resolver TreeResolver
	env      interfaces.EnvironmentSink
	opts     Options
	log      *slog.Logger
	hooks    map[string]HookFunc
}

// New binds the lifecycle hooks to tree. env receives the projected
// environment of opts.Function.
func New(tree *interfaces.ConfigurationTree, r TreeResolver, env interfaces.EnvironmentSink, opts Options, log *slog.Logger) *Plugin {
	if log == nil {
		log = slog.Default()
	}

	p := &Plugin{
		tree:     tree,
		resolver: r,
		env:      env,
		opts:     opts,
		log:      log,
	}

	p.hooks = map[string]HookFunc{
		HookBeforeDeployFunctions:       p.ReplaceEnvironmentVariables,
		HookCreateDeploymentArtifacts:   p.ReplaceEnvironmentVariables,
		HookBeforeDeployFunctionPackage: p.ReplaceEnvironmentVariables,
		HookBeforeInvokeLocal:           p.ReplaceProcessEnvironment,
		HookBeforeInvokeLocalLoadEnv:    p.ReplaceEnvironmentVariables,
		HookBeforeOfflineStart:          p.ReplaceEnvironmentVariables,
		HookBeforeOfflineStartInit:      p.ReplaceEnvironmentVariables,
	}
	return p
}

// Hooks returns the bound hook names in lexical order.
func (p *Plugin) Hooks() []string {
	names := make([]string, 0, len(p.hooks))
	for name := range p.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the action bound to hook.
func (p *Plugin) Run(ctx context.Context, hook string) error {
	fn, ok := p.hooks[hook]
	if !ok {
		return fmt.Errorf("unknown lifecycle hook: %s", hook)
	}

	p.log.Debug("Running lifecycle hook", slog.String("hook", hook))
	if err := fn(ctx); err != nil {
		return fmt.Errorf("hook %s: %w", hook, err)
	}
	return nil
}

// ReplaceEnvironmentVariables resolves every cipher reference in the tree.
func (p *Plugin) ReplaceEnvironmentVariables(ctx context.Context) error {
	return p.resolver.ResolveTree(ctx, p.tree)
}

// ReplaceProcessEnvironment projects the shared and function environment into
// the process environment. It expects the tree to be resolved already.
func (p *Plugin) ReplaceProcessEnvironment(ctx context.Context) error {
	return resolver.ProjectToProcessEnvironment(p.tree, p.opts.Function, p.env)
}
