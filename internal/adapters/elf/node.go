package elf

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the ELF inspector Graft node.
const NodeID graft.ID = "adapter.elf"

func init() {
	graft.Register(graft.Node[ports.Inspector]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Inspector, error) {
			return NewInspector(), nil
		},
	})
}
