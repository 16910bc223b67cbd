package auditor

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/elf"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the auditor Graft node.
const NodeID graft.ID = "engine.auditor"

func init() {
	graft.Register(graft.Node[*Auditor]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{elf.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Auditor, error) {
			inspector, err := graft.Dep[ports.Inspector](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(inspector, log), nil
		},
	})
}
