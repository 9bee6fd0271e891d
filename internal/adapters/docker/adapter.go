package docker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	defaultStopTimeout = 10 * time.Second
	// extra time the stop request gets beyond the daemon's own kill timeout
	stopGrace = 5 * time.Second
)

// Manager implements ports.ContainerService on top of the Docker SDK.
type Manager struct {
	engine      Engine
	log         *logrus.Entry
	metrics     *metrics.Collector
	session     string
	stopTimeout time.Duration
	pullPolicy  PullPolicy

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger entry the manager derives its fields from.
func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) { m.log = log }
}

// WithMetrics records every engine call in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithSession overrides the generated session id.
func WithSession(id string) Option {
	return func(m *Manager) { m.session = id }
}

// WithStopTimeout sets how long the daemon waits before killing a stopped container.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) { m.stopTimeout = d }
}

// WithPullPolicy sets when images are pulled before creating a container.
func WithPullPolicy(p PullPolicy) Option {
	return func(m *Manager) { m.pullPolicy = p }
}

// NewManager wraps engine. The manager owns the engine and closes it in Close.
func NewManager(engine Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:      engine,
		session:     uuid.NewString(),
		stopTimeout: defaultStopTimeout,
		pullPolicy:  PullMissing,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if m.metrics == nil {
		m.metrics = metrics.NewCollector(nil)
	}
	m.log = m.log.WithFields(logrus.Fields{"component": "docker", "session": m.session})
	return m
}

// Session returns the id stamped on every container this manager creates.
func (m *Manager) Session() string {
	return m.session
}

// Info returns the engine's system information.
func (m *Manager) Info(ctx context.Context) (domain.EngineInfo, error) {
	done := m.metrics.Track("info")
	info, err := m.engine.Info(ctx)
	done(err)
	if err != nil {
		return domain.EngineInfo{}, fmt.Errorf("failed to get docker info: %w", classify(err))
	}
	return fromInfo(info), nil
}

// ListContainers returns running containers, or every container when all is set.
func (m *Manager) ListContainers(ctx context.Context, all bool) ([]domain.Container, error) {
	done := m.metrics.Track("container_list")
	containers, err := m.engine.ContainerList(ctx, types.ContainerListOptions{All: all})
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", classify(err))
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		result = append(result, fromSummary(c))
	}
	return result, nil
}

// GetContainer inspects a container by id, id prefix or name.
func (m *Manager) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	c, err := m.inspect(ctx, id)
	if err != nil {
		return domain.Container{}, fmt.Errorf("failed to inspect container %s: %w", id, classify(err))
	}
	return fromInspect(c), nil
}

func (m *Manager) inspect(ctx context.Context, id string) (types.ContainerJSON, error) {
	done := m.metrics.Track("container_inspect")
	c, err := m.engine.ContainerInspect(ctx, id)
	done(err)
	return c, err
}

// StopContainer stops a running container, giving it the configured stop
// timeout before the daemon kills it.
func (m *Manager) StopContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, m.stopTimeout+stopGrace)
	defer cancel()

	secs := int(m.stopTimeout / time.Second)
	done := m.metrics.Track("container_stop")
	err := m.engine.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs})
	done(err)
	if err != nil {
		return fmt.Errorf("failed to stop container %s: %w", id, classify(err))
	}
	m.log.WithField("container", shortID(id)).Info("container stopped")
	return nil
}

// RemoveContainer removes a container. force kills a running container first.
func (m *Manager) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := m.remove(ctx, id, force); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, classify(err))
	}
	m.log.WithField("container", shortID(id)).Info("container removed")
	return nil
}

func (m *Manager) remove(ctx context.Context, id string, force bool) error {
	done := m.metrics.Track("container_remove")
	err := m.engine.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force, RemoveVolumes: true})
	done(err)
	return err
}

// WaitContainer blocks until the container stops running and returns its exit code.
func (m *Manager) WaitContainer(ctx context.Context, id string) (int64, error) {
	done := m.metrics.Track("container_wait")
	code, err := m.wait(ctx, id)
	done(err)
	if err != nil {
		return code, fmt.Errorf("failed to wait for container %s: %w", id, classify(err))
	}
	return code, nil
}

func (m *Manager) wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := m.engine.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, errors.New(status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Close releases the engine client. It is safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.engine.Close()
	})
	return m.closeErr
}
