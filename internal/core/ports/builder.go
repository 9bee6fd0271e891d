package ports

import (
	"context"

	"github.com/melih/docker-cicd-manager/internal/core/domain"
)

// BuilderService defines operations for building container images from source code.
type BuilderService interface {
	// BuildImage clones a repository and builds a Docker image from it.
	// It returns the tag of the built image or an error.
	BuildImage(ctx context.Context, req domain.BuildRequest) (string, error)
}
