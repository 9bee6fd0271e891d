package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/sirupsen/logrus"
)

// PullPolicy decides when an image is pulled before a container is created.
type PullPolicy string

const (
	PullMissing PullPolicy = "missing"
	PullAlways  PullPolicy = "always"
	PullNever   PullPolicy = "never"
)

// ParsePullPolicy validates s. An empty string selects PullMissing.
func ParsePullPolicy(s string) (PullPolicy, error) {
	switch p := PullPolicy(s); p {
	case "":
		return PullMissing, nil
	case PullMissing, PullAlways, PullNever:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pull policy %q (want missing, always or never)", s)
	}
}

func (m *Manager) ensureImage(ctx context.Context, ref string) error {
	if m.pullPolicy != PullAlways {
		done := m.metrics.Track("image_inspect")
		_, _, err := m.engine.ImageInspectWithRaw(ctx, ref)
		done(err)
		if err == nil {
			return nil
		}
		if !errdefs.IsNotFound(err) || m.pullPolicy == PullNever {
			return fmt.Errorf("failed to inspect image %s: %w", ref, classify(err))
		}
	}
	return m.pull(ctx, ref)
}

func (m *Manager) pull(ctx context.Context, ref string) error {
	log := m.log.WithField("image", ref)
	log.Info("pulling image")

	done := m.metrics.Track("image_pull")
	reader, err := m.engine.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		done(err)
		return fmt.Errorf("failed to pull image %s: %w", ref, classify(err))
	}
	defer reader.Close()

	// progress goes to the debug log; an error message in the stream fails the pull
	w := log.WriterLevel(logrus.DebugLevel)
	defer w.Close()
	err = jsonmessage.DisplayJSONMessagesStream(reader, w, 0, false, nil)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}
