package wiring_test

import (
	"context"
	"testing"

	"github.com/grindlemire/graft"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/app"
	_ "go.trai.ch/kiln/internal/wiring"
)

// TestGraftDependencies resolves the whole node graph. Nodes use ports
// interfaces from one shared package, which graft.AssertDepsValid cannot
// tell apart, so the graph is executed instead of analyzed.
func TestGraftDependencies(t *testing.T) {
	components, _, err := graft.ExecuteFor[*app.Components](context.Background())
	require.NoError(t, err)
	require.NotNil(t, components.App)
	require.NotNil(t, components.Logger)
}
