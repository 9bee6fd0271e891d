package docker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
)

// classify marks engine errors with the matching domain sentinel while
// keeping the original error in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	default:
		return err
	}
}

func fromSummary(c types.Container) domain.Container {
	// Use the first name if available, remove slash
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	var ip string
	if c.NetworkSettings != nil {
		ip = firstIP(c.NetworkSettings.Networks)
	}

	return domain.Container{
		ID:        c.ID,
		Name:      name,
		Image:     c.Image,
		Status:    c.Status,
		State:     c.State,
		IPAddress: ip,
		Labels:    c.Labels,
		Created:   time.Unix(c.Created, 0),
	}
}

func fromInspect(c types.ContainerJSON) domain.Container {
	out := domain.Container{}
	if c.ContainerJSONBase != nil {
		out.ID = c.ID
		out.Name = strings.TrimPrefix(c.Name, "/")
		if created, err := time.Parse(time.RFC3339Nano, c.Created); err == nil {
			out.Created = created
		}
		if c.State != nil {
			out.State = c.State.Status
			out.Status = c.State.Status
			out.ExitCode = c.State.ExitCode
		}
	}
	if c.Config != nil {
		out.Image = c.Config.Image
		out.Labels = c.Config.Labels
	}
	if c.NetworkSettings != nil {
		out.IPAddress = firstIP(c.NetworkSettings.Networks)
	}
	return out
}

func fromInfo(info types.Info) domain.EngineInfo {
	return domain.EngineInfo{
		ID:                info.ID,
		Name:              info.Name,
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		Architecture:      info.Architecture,
		NCPU:              info.NCPU,
		MemTotal:          info.MemTotal,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		ContainersPaused:  info.ContainersPaused,
		ContainersStopped: info.ContainersStopped,
		Images:            info.Images,
	}
}

// firstIP picks the address on the alphabetically first network that has one.
func firstIP(networks map[string]*network.EndpointSettings) string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ep := networks[name]; ep != nil && ep.IPAddress != "" {
			return ep.IPAddress
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// IsNotFound reports whether err marks a missing container or image.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
