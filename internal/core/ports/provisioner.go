package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// Provisioner prepares the host for building.
//
//go:generate go run go.uber.org/mock/mockgen -source=provisioner.go -destination=mocks/mock_provisioner.go -package=mocks
type Provisioner interface {
	// Provision installs the packages the spec lists for the detected host
	// package manager.
	Provision(ctx context.Context, spec domain.ProvisionSpec) error

	// Verify checks that every tool is an executable on PATH.
	Verify(tools []string) error
}
