package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Engine is the subset of the Docker SDK client the manager and builder use.
// Each method matches github.com/docker/docker/client directly.
type Engine interface {
	Ping(ctx context.Context) (types.Ping, error)
	Info(ctx context.Context) (types.Info, error)

	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)

	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)

	Close() error
}

var _ Engine = (*client.Client)(nil)

// EngineConfig selects the daemon to talk to. Empty fields fall back to the
// DOCKER_* environment variables.
type EngineConfig struct {
	Host       string
	APIVersion string
}

// NewEngine creates a Docker SDK client.
func NewEngine(cfg EngineConfig) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	} else {
		// this syncs to the latest possible API based on running docker version and our bindings
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// Connect pings the daemon, retrying with exponential backoff up to retries
// additional times.
func Connect(ctx context.Context, engine Engine, retries uint64, base time.Duration) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ping, err := engine.Ping(ctx)
		if err != nil {
			logrus.WithError(err).Warn("docker daemon not reachable, will retry...")
			return retry.RetryableError(err)
		}
		logrus.WithFields(logrus.Fields{"api_version": ping.APIVersion, "os_type": ping.OSType}).Debug("connected to docker daemon")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to docker daemon: %w", err)
	}
	return nil
}
