package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/melih/docker-cicd-manager/internal/adapters/docker/dockertest"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.BuilderService = (*Adapter)(nil)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Dockerfile", "FROM alpine:latest\nCMD [\"echo\", \"hi\"]\n")
	writeFile(t, dir, "app/main.sh", "echo hi\n")
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main\n")

	engine := dockertest.New()
	b := NewBuilderAdapter(engine, "s1")

	image, err := b.BuildContext(context.Background(), dir, domain.BuildRequest{Image: "cicd-app:test"})
	require.NoError(t, err)
	assert.Equal(t, "cicd-app:test", image)
	assert.True(t, engine.HasImage("cicd-app:test"))

	builds := engine.Builds()
	require.Len(t, builds, 1)
	assert.Equal(t, []string{"cicd-app:test"}, builds[0].Tags)
	assert.Equal(t, "Dockerfile", builds[0].Dockerfile)
	assert.Equal(t, domain.ManagerName, builds[0].Labels[domain.LabelManagedBy])
	assert.Equal(t, "s1", builds[0].Labels[domain.LabelSession])
	assert.Contains(t, builds[0].Files, "Dockerfile")
	for _, f := range builds[0].Files {
		assert.NotContains(t, f, ".git", "git metadata is excluded from the context")
	}
}

func TestBuildContextMissingDockerfile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "no dockerfile here\n")

	engine := dockertest.New()
	b := NewBuilderAdapter(engine, "s1")

	_, err := b.BuildContext(context.Background(), dir, domain.BuildRequest{Image: "cicd-app:test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot locate specified Dockerfile")
	assert.False(t, engine.HasImage("cicd-app:test"))
}

func TestBuildImageValidation(t *testing.T) {
	b := NewBuilderAdapter(dockertest.New(), "s1")

	_, err := b.BuildImage(context.Background(), domain.BuildRequest{Image: "x"})
	assert.Error(t, err)

	_, err = b.BuildImage(context.Background(), domain.BuildRequest{RepoURL: "https://example.com/repo.git"})
	assert.ErrorIs(t, err, domain.ErrImageRequired)
}
