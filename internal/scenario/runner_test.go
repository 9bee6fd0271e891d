package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/melih/docker-cicd-manager/internal/adapters/docker"
	"github.com/melih/docker-cicd-manager/internal/adapters/docker/dockertest"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T) (*Runner, *dockertest.Engine) {
	t.Helper()
	engine := dockertest.New()
	m := docker.NewManager(engine)
	t.Cleanup(func() { m.Close() })
	r := NewRunner(m, nil)
	r.WaitTimeout = 5 * time.Second
	return r, engine
}

func TestBasic(t *testing.T) {
	r, engine := newRunner(t)

	report, err := r.Basic(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.Engine)
	assert.Equal(t, "25.0.6", report.Engine.ServerVersion)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "Hello from Docker CI/CD Manager!\n", report.Results[0].Logs)
	assert.Equal(t, "python-test", report.Results[1].Container.Name)
	assert.Len(t, report.Listed, 2)
	assert.Equal(t, 2, report.Cleaned)
	assert.Equal(t, 0, engine.Count())
}

func TestRunSuite(t *testing.T) {
	r, engine := newRunner(t)
	suite, err := Builtin("advanced")
	require.NoError(t, err)

	report, err := r.RunSuite(context.Background(), suite)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, "Alpine Linux test\n", report.Results[0].Logs)
	assert.Equal(t, "BusyBox test\n", report.Results[1].Logs)
	assert.Equal(t, "Python container test\n", report.Results[2].Logs)
	for _, res := range report.Results {
		assert.Equal(t, int64(0), res.ExitCode)
	}
	assert.Equal(t, 3, report.Cleaned)
	assert.Equal(t, 0, engine.Count())
}

func TestRunSuiteCleansUpOnFailure(t *testing.T) {
	r, engine := newRunner(t)

	_, err := r.RunSuite(context.Background(), Suite{Name: "broken", Containers: []domain.ContainerSpec{
		{Image: "alpine", Command: "echo first"},
		{Image: "non-existent-image:latest"},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, engine.Count(), "containers created before the failure are removed")
}

func TestRunSuiteWaitTimeout(t *testing.T) {
	r, engine := newRunner(t)
	r.WaitTimeout = 20 * time.Millisecond

	_, err := r.RunSuite(context.Background(), Suite{Name: "slow", Containers: []domain.ContainerSpec{
		{Image: "busybox", Command: "sleep 30"},
	}})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, engine.Count())
}

func TestLifecycle(t *testing.T) {
	r, engine := newRunner(t)
	require.NoError(t, r.Lifecycle(context.Background()))
	assert.Equal(t, 0, engine.Count())
}

func TestErrorHandling(t *testing.T) {
	r, _ := newRunner(t)
	require.NoError(t, r.ErrorHandling(context.Background()))
}

// permissive accepts every operation, so the error checks must fail.
type permissive struct {
	ports.ContainerService
}

func (permissive) CreateTestContainer(ctx context.Context, spec domain.ContainerSpec) (domain.Container, error) {
	return domain.Container{ID: "x"}, nil
}

func (permissive) GetContainerLogs(ctx context.Context, id string, opts domain.LogOptions) (string, error) {
	return "", nil
}

func (permissive) StopContainer(ctx context.Context, id string) error {
	return nil
}

func (permissive) CleanupTestContainers(ctx context.Context, scope domain.CleanupScope) (int, error) {
	return 0, nil
}

func TestErrorHandlingDetectsMissingErrors(t *testing.T) {
	r := NewRunner(permissive{}, nil)
	err := r.ErrorHandling(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image: expected an error")
	assert.Contains(t, err.Error(), "stop of missing container: expected an error")
}

func TestAdvanced(t *testing.T) {
	r, engine := newRunner(t)
	require.NoError(t, r.Advanced(context.Background()))
	assert.Equal(t, 0, engine.Count())
}
