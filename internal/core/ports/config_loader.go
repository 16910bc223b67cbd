package ports

import "go.trai.ch/kiln/internal/core/domain"

// ConfigLoader defines the interface for loading the pipeline configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the pipeline from path. Relative directories in the file are
	// resolved against the file's directory. A missing file yields the
	// built-in pipeline rooted at the directory of path.
	Load(path string) (*domain.Pipeline, error)
}
