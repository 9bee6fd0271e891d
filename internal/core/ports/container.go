package ports

import (
	"context"
	"io"

	"github.com/melih/docker-cicd-manager/internal/core/domain"
)

// ContainerService defines the container operations the manager exposes.
// Each operation maps onto the engine's own API; the engine owns all state.
type ContainerService interface {
	Info(ctx context.Context) (domain.EngineInfo, error)
	CreateTestContainer(ctx context.Context, spec domain.ContainerSpec) (domain.Container, error)
	ListContainers(ctx context.Context, all bool) ([]domain.Container, error)
	GetContainer(ctx context.Context, id string) (domain.Container, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	// WaitContainer blocks until the container is no longer running and
	// returns its exit code.
	WaitContainer(ctx context.Context, id string) (int64, error)
	GetContainerLogs(ctx context.Context, id string, opts domain.LogOptions) (string, error)
	// FollowLogs streams demultiplexed logs until the container exits or ctx is done.
	FollowLogs(ctx context.Context, id string, stdout, stderr io.Writer) error
	// CleanupTestContainers force-removes labelled test containers and
	// returns how many were removed.
	CleanupTestContainers(ctx context.Context, scope domain.CleanupScope) (int, error)
	Close() error
}
