package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
)

// GetContainerLogs returns the container's logs as text. Output of containers
// without a TTY is demultiplexed, with stdout and stderr interleaved in the
// order the daemon sent them.
func (m *Manager) GetContainerLogs(ctx context.Context, id string, opts domain.LogOptions) (string, error) {
	c, err := m.inspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to get logs for container %s: %w", id, classify(err))
	}
	tty := c.Config != nil && c.Config.Tty

	stdout, stderr := opts.Streams()
	done := m.metrics.Track("container_logs")
	reader, err := m.engine.ContainerLogs(ctx, id, types.ContainerLogsOptions{
		ShowStdout: stdout,
		ShowStderr: stderr,
		Timestamps: opts.Timestamps,
		Tail:       opts.Tail,
	})
	done(err)
	if err != nil {
		return "", fmt.Errorf("failed to get logs for container %s: %w", id, classify(err))
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := copyLogs(&buf, &buf, reader, tty); err != nil {
		return "", fmt.Errorf("failed to read logs for container %s: %w", id, err)
	}
	return buf.String(), nil
}

// FollowLogs streams logs into stdout and stderr until the container exits
// or ctx is canceled.
func (m *Manager) FollowLogs(ctx context.Context, id string, stdout, stderr io.Writer) error {
	c, err := m.inspect(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to follow logs for container %s: %w", id, classify(err))
	}
	tty := c.Config != nil && c.Config.Tty

	done := m.metrics.Track("container_logs")
	reader, err := m.engine.ContainerLogs(ctx, id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	done(err)
	if err != nil {
		return fmt.Errorf("failed to follow logs for container %s: %w", id, classify(err))
	}
	defer reader.Close()

	if err := copyLogs(stdout, stderr, reader, tty); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to read logs for container %s: %w", id, err)
	}
	return nil
}

func copyLogs(stdout, stderr io.Writer, src io.Reader, tty bool) error {
	if tty {
		_, err := io.Copy(stdout, src)
		return err
	}
	_, err := stdcopy.StdCopy(stdout, stderr, src)
	return err
}
