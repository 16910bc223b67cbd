package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// WalkerNodeID is the graft node that provides the staging snapshotter.
	WalkerNodeID graft.ID = "adapter.fs.walker"
	// ResolverNodeID is the graft node that provides the glob resolver.
	ResolverNodeID graft.ID = "adapter.fs.resolver"
	HasherNodeID   graft.ID = "adapter.fs.hasher"
	VerifierNodeID graft.ID = "adapter.fs.verifier"
	PostNodeID     graft.ID = "adapter.fs.post"
)

func init() {
	graft.Register(graft.Node[ports.Snapshotter]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Snapshotter, error) {
			return NewWalker(), nil
		},
	})

	// Resolver Node (concrete implementation needed by the post runner)
	graft.Register(graft.Node[*Resolver]{
		ID:        ResolverNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Resolver, error) {
			return NewResolver(), nil
		},
	})

	graft.Register(graft.Node[ports.Hasher]{
		ID:        HasherNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Hasher, error) {
			return NewHasher(), nil
		},
	})

	graft.Register(graft.Node[ports.Verifier]{
		ID:        VerifierNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Verifier, error) {
			return NewVerifier(), nil
		},
	})

	graft.Register(graft.Node[ports.PostRunner]{
		ID:        PostNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{ResolverNodeID},
		Run: func(ctx context.Context) (ports.PostRunner, error) {
			resolver, err := graft.Dep[*Resolver](ctx)
			if err != nil {
				return nil, err
			}
			return NewPostRunner(resolver), nil
		},
	})
}
