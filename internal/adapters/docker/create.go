package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/sirupsen/logrus"
)

// CreateTestContainer pulls the image if needed, then creates and starts a
// detached container carrying the test, manager and session labels.
func (m *Manager) CreateTestContainer(ctx context.Context, spec domain.ContainerSpec) (domain.Container, error) {
	if err := spec.Validate(); err != nil {
		return domain.Container{}, err
	}
	log := m.log.WithFields(logrus.Fields{"image": spec.Image, "name": spec.Name})

	config, hostConfig, err := m.containerConfig(spec)
	if err != nil {
		return domain.Container{}, err
	}

	if err := m.ensureImage(ctx, spec.Image); err != nil {
		return domain.Container{}, err
	}

	if spec.Name != "" {
		if err := m.releaseName(ctx, spec.Name); err != nil {
			return domain.Container{}, err
		}
	}

	done := m.metrics.Track("container_create")
	resp, err := m.engine.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	done(err)
	if err != nil {
		return domain.Container{}, fmt.Errorf("failed to create container: %w", classify(err))
	}
	for _, w := range resp.Warnings {
		log.WithField("container", shortID(resp.ID)).Warn(w)
	}

	done = m.metrics.Track("container_start")
	err = m.engine.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{})
	done(err)
	if err != nil {
		// the container keeps its labels, so cleanup still finds it
		return domain.Container{}, fmt.Errorf("failed to start container %s: %w", shortID(resp.ID), classify(err))
	}

	c, err := m.GetContainer(ctx, resp.ID)
	if err != nil {
		return domain.Container{}, err
	}
	log.WithField("container", c.ShortID()).Info("test container started")
	return c, nil
}

func (m *Manager) containerConfig(spec domain.ContainerSpec) (*container.Config, *container.HostConfig, error) {
	args, err := spec.Args()
	if err != nil {
		return nil, nil, err
	}

	exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid port spec: %w", err)
	}

	var memory int64
	if spec.Memory != "" {
		memory, err = units.RAMInBytes(spec.Memory)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid memory limit %q: %w", spec.Memory, err)
		}
	}

	config := &container.Config{
		Image:        spec.Image,
		Cmd:          args,
		Env:          spec.EnvList(),
		Labels:       m.labels(spec.Labels),
		Tty:          spec.Tty,
		WorkingDir:   spec.WorkingDir,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		Resources:    container.Resources{Memory: memory},
	}
	return config, hostConfig, nil
}

// labels merges user labels with the manager's own; the manager's win.
func (m *Manager) labels(extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+3)
	for k, v := range extra {
		labels[k] = v
	}
	labels[domain.LabelTest] = "true"
	labels[domain.LabelManagedBy] = domain.ManagerName
	labels[domain.LabelSession] = m.session
	return labels
}

// releaseName removes a leftover test container holding name. A container
// without the test label is never touched.
func (m *Manager) releaseName(ctx context.Context, name string) error {
	existing, err := m.inspect(ctx, name)
	if errdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %w", name, classify(err))
	}

	// the daemon also resolves ids and id prefixes; only an exact name match holds the name
	c := fromInspect(existing)
	if c.Name != strings.TrimPrefix(name, "/") {
		return nil
	}
	if !c.IsTest() {
		return fmt.Errorf("container name %q is used by a container not managed as a test container: %w", name, domain.ErrConflict)
	}

	m.log.WithFields(logrus.Fields{"container": c.ShortID(), "name": name}).Info("removing stale test container")
	if err := m.remove(ctx, c.ID, true); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove stale container %s: %w", name, classify(err))
	}
	return nil
}
