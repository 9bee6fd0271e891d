package builder

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/sirupsen/logrus"
)

// ImageBuilder is the part of the Docker SDK client the builder needs.
type ImageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// Adapter implements ports.BuilderService with go-git and the Docker SDK.
type Adapter struct {
	engine  ImageBuilder
	log     *logrus.Entry
	session string
}

// NewBuilderAdapter creates a builder sharing the manager's engine. Built
// images carry the managed-by and session labels.
func NewBuilderAdapter(engine ImageBuilder, session string) *Adapter {
	return &Adapter{
		engine:  engine,
		log:     logrus.WithFields(logrus.Fields{"component": "builder", "session": session}),
		session: session,
	}
}

// BuildImage clones a repo and builds a Docker image
func (a *Adapter) BuildImage(ctx context.Context, req domain.BuildRequest) (string, error) {
	if req.RepoURL == "" {
		return "", fmt.Errorf("repository url is required")
	}
	if req.Image == "" {
		return "", domain.ErrImageRequired
	}

	// 1. Create temporary directory
	tmpDir, err := os.MkdirTemp("", "cicd-build-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir) // Clean up after build

	// 2. Clone Repository
	log := a.log.WithFields(logrus.Fields{"repo": req.RepoURL, "image": req.Image})
	log.Info("cloning repository")

	progress := log.WriterLevel(logrus.DebugLevel)
	defer progress.Close()

	opts := &git.CloneOptions{
		URL:      req.RepoURL,
		Progress: progress,
		Depth:    1, // Shallow clone for speed
	}
	if req.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Ref)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, tmpDir, false, opts); err != nil {
		return "", fmt.Errorf("failed to clone repo: %w", err)
	}

	return a.BuildContext(ctx, tmpDir, req)
}

// BuildContext tars dir and builds req.Image from it.
func (a *Adapter) BuildContext(ctx context.Context, dir string, req domain.BuildRequest) (string, error) {
	if req.Image == "" {
		return "", domain.ErrImageRequired
	}
	dockerfile := req.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	// 3. Create Build Context (Tar)
	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{ExcludePatterns: []string{".git"}})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	// 4. Build Docker Image
	log := a.log.WithField("image", req.Image)
	log.Info("building image")
	resp, err := a.engine.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{req.Image},
		Dockerfile: dockerfile,
		Remove:     true, // Remove intermediate containers
		Labels: map[string]string{
			domain.LabelManagedBy: domain.ManagerName,
			domain.LabelSession:   a.session,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The build only finishes once the body is drained; build errors arrive
	// as messages in the stream.
	out := log.WriterLevel(logrus.DebugLevel)
	defer out.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}

	log.Info("image built")
	return req.Image, nil
}
