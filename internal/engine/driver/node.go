package driver

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/cas"                //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/fetch"              //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/fs"                 //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/logger"             //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/shell"              //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the driver Graft node.
const NodeID graft.ID = "engine.driver"

func init() {
	graft.Register(graft.Node[*Driver]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			shell.NodeID,
			fs.HasherNodeID,
			cas.NodeID,
			fs.VerifierNodeID,
			fs.WalkerNodeID,
			fs.PostNodeID,
			fetch.NodeID,
			progrock.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Driver, error) {
			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}

			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}

			store, err := graft.Dep[ports.BuildInfoStore](ctx)
			if err != nil {
				return nil, err
			}

			verifier, err := graft.Dep[ports.Verifier](ctx)
			if err != nil {
				return nil, err
			}

			snapshots, err := graft.Dep[ports.Snapshotter](ctx)
			if err != nil {
				return nil, err
			}

			post, err := graft.Dep[ports.PostRunner](ctx)
			if err != nil {
				return nil, err
			}

			fetcher, err := graft.Dep[ports.Fetcher](ctx)
			if err != nil {
				return nil, err
			}

			telemetry, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(executor, hasher, store, verifier, snapshots, post, fetcher, telemetry, log), nil
		},
	})
}
