package packager

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/archive" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/elf"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/fs"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/logger"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/shell"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the packager Graft node.
const NodeID graft.ID = "engine.packager"

func init() {
	graft.Register(graft.Node[*Packager]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			elf.NodeID,
			fs.PostNodeID,
			shell.NodeID,
			archive.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Packager, error) {
			inspector, err := graft.Dep[ports.Inspector](ctx)
			if err != nil {
				return nil, err
			}

			files, err := graft.Dep[ports.PostRunner](ctx)
			if err != nil {
				return nil, err
			}

			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}

			archiver, err := graft.Dep[ports.Archiver](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(inspector, files, executor, archiver, log), nil
		},
	})
}
