// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// Executor defines the interface for running child processes.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs the command to completion.
	//
	// The command's Env is layered over the process environment for the child
	// only. It returns an error carrying exit_code and output_tail metadata
	// if the command exits non-zero.
	Execute(ctx context.Context, cmd *domain.Command) error
}
