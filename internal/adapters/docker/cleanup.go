package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/errdefs"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// CleanupTestContainers force-removes every container carrying the test
// label (limited to this session for ScopeSession). It returns the number of
// containers removed; failures for individual containers are aggregated and
// do not stop the remaining removals.
func (m *Manager) CleanupTestContainers(ctx context.Context, scope domain.CleanupScope) (int, error) {
	args := filters.NewArgs(filters.Arg("label", domain.LabelTest+"=true"))
	if scope == domain.ScopeSession {
		args.Add("label", domain.LabelSession+"="+m.session)
	}

	done := m.metrics.Track("container_list")
	containers, err := m.engine.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: args})
	done(err)
	if err != nil {
		return 0, fmt.Errorf("failed to list test containers: %w", classify(err))
	}

	var (
		removed int
		errs    error
	)
	for _, c := range containers {
		err := m.remove(ctx, c.ID, true)
		switch {
		case err == nil:
			removed++
		case errdefs.IsNotFound(err):
			// already gone, e.g. auto-removed
		default:
			errs = multierr.Append(errs, fmt.Errorf("failed to remove container %s: %w", shortID(c.ID), classify(err)))
		}
	}

	m.metrics.AddCleaned(removed)
	m.log.WithFields(logrus.Fields{"removed": removed, "scope": scope.String()}).Info("test containers cleaned up")
	return removed, errs
}
