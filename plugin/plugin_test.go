package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/kms-env-resolver/interfaces"
	"github.com/ruteri/kms-env-resolver/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTreeResolver implements TreeResolver for testing
type MockTreeResolver struct {
	mock.Mock
}

func (m *MockTreeResolver) ResolveTree(ctx context.Context, tree *interfaces.ConfigurationTree) error {
	args := m.Called(ctx, tree)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlugin_ResolvingHooks(t *testing.T) {
	resolvingHooks := []string{
		HookBeforeDeployFunctions,
		HookCreateDeploymentArtifacts,
		HookBeforeDeployFunctionPackage,
		HookBeforeInvokeLocalLoadEnv,
		HookBeforeOfflineStart,
		HookBeforeOfflineStartInit,
	}

	for _, hook := range resolvingHooks {
		t.Run(hook, func(t *testing.T) {
			tree := &interfaces.ConfigurationTree{}
			r := &MockTreeResolver{}
			r.On("ResolveTree", mock.Anything, tree).Return(nil).Once()

			env := resolver.MapEnvironment{}
			p := New(tree, r, env, Options{Function: "api"}, testLogger())

			require.NoError(t, p.Run(context.Background(), hook))
			r.AssertExpectations(t)
			assert.Empty(t, env, "resolving hooks never touch the environment")
		})
	}
}

func TestPlugin_InvokeLocalProjectsEnvironment(t *testing.T) {
	tree := &interfaces.ConfigurationTree{
		Shared: interfaces.Scope{"STAGE": "dev", "TOKEN": "shared"},
		Units: map[string]interfaces.Scope{
			"api":    {"TOKEN": "api"},
			"worker": {"QUEUE": "jobs"},
		},
	}
	r := &MockTreeResolver{}
	env := resolver.MapEnvironment{}

	p := New(tree, r, env, Options{Function: "api"}, testLogger())
	require.NoError(t, p.Run(context.Background(), HookBeforeInvokeLocal))

	assert.Equal(t, resolver.MapEnvironment{"STAGE": "dev", "TOKEN": "api"}, env)
	r.AssertNotCalled(t, "ResolveTree", mock.Anything, mock.Anything)
}

func TestPlugin_Errors(t *testing.T) {
	tree := &interfaces.ConfigurationTree{}
	r := &MockTreeResolver{}
	r.On("ResolveTree", mock.Anything, tree).Return(interfaces.ErrOracleFailure)

	p := New(tree, r, resolver.MapEnvironment{}, Options{}, testLogger())

	err := p.Run(context.Background(), HookCreateDeploymentArtifacts)
	require.ErrorIs(t, err, interfaces.ErrOracleFailure)
	assert.Contains(t, err.Error(), HookCreateDeploymentArtifacts)

	err = p.Run(context.Background(), "after:deploy:deploy")
	require.Error(t, err)
	assert.False(t, errors.Is(err, interfaces.ErrOracleFailure))
}

func TestPlugin_Hooks(t *testing.T) {
	p := New(&interfaces.ConfigurationTree{}, &MockTreeResolver{}, resolver.MapEnvironment{}, Options{}, testLogger())
	assert.Len(t, p.Hooks(), 7)
	assert.Contains(t, p.Hooks(), HookBeforeInvokeLocal)
	assert.IsNonDecreasing(t, p.Hooks())
}
