package progrock

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// NodeID is the unique identifier for the telemetry adapter node.
	NodeID graft.ID = "adapter.telemetry"
	// RunLogNodeID is the unique identifier for the journal reader node.
	RunLogNodeID graft.ID = "adapter.run_log"
)

func init() {
	graft.Register(graft.Node[ports.Telemetry]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Telemetry, error) {
			return New(), nil
		},
	})

	graft.Register(graft.Node[ports.RunLog]{
		ID:        RunLogNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.RunLog, error) {
			return NewRunLog(), nil
		},
	})
}
