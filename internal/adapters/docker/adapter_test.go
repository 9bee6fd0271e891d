package docker

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/melih/docker-cicd-manager/internal/adapters/docker/dockertest"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/core/ports"
	"github.com/melih/docker-cicd-manager/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

var (
	_ Engine                 = (*dockertest.Engine)(nil)
	_ ports.ContainerService = (*Manager)(nil)
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *dockertest.Engine) {
	t.Helper()
	engine := dockertest.New()
	m := NewManager(engine, append([]Option{WithSession("test-session")}, opts...)...)
	t.Cleanup(func() { m.Close() })
	return m, engine
}

func TestInfo(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox:latest", Command: "sleep 30"})
	require.NoError(t, err)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "25.0.6", info.ServerVersion)
	assert.Equal(t, 1, info.Containers)
	assert.Equal(t, 1, info.ContainersRunning)
}

func TestCreateTestContainer(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{
		Image:   "ubuntu:latest",
		Command: "echo 'Hello from Docker CI/CD Manager!'",
		Name:    "basic-usage-test",
		Labels:  map[string]string{"team": "ci", domain.LabelTest: "false"},
		Ports:   []string{"8080:80/tcp"},
		Memory:  "64m",
	})
	require.NoError(t, err)

	assert.Len(t, c.ID, 64)
	assert.Equal(t, "basic-usage-test", c.Name)
	assert.Equal(t, "ubuntu:latest", c.Image)
	assert.Equal(t, "true", c.Labels[domain.LabelTest], "manager labels win over user labels")
	assert.Equal(t, domain.ManagerName, c.Labels[domain.LabelManagedBy])
	assert.Equal(t, "test-session", c.Labels[domain.LabelSession])
	assert.Equal(t, "ci", c.Labels["team"])
	assert.True(t, engine.HasImage("ubuntu:latest"), "image is pulled when missing")

	hc, ok := engine.HostConfig(c.ID)
	require.True(t, ok)
	assert.Equal(t, int64(64<<20), hc.Memory)
	require.Len(t, hc.PortBindings, 1)
	for port, bindings := range hc.PortBindings {
		assert.Equal(t, "80/tcp", string(port))
		assert.Equal(t, "8080", bindings[0].HostPort)
	}

	code, err := m.WaitContainer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), code)

	logs, err := m.GetContainerLogs(ctx, c.ID, domain.LogOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Hello from Docker CI/CD Manager!\n", logs)
}

func TestCreateTestContainerValidation(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateTestContainer(ctx, domain.ContainerSpec{})
	assert.ErrorIs(t, err, domain.ErrImageRequired)

	_, err = m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine", Memory: "lots"})
	assert.Error(t, err)

	_, err = m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine", Ports: []string{"http"}})
	assert.Error(t, err)

	assert.Equal(t, 0, engine.Count())
}

func TestCreateTestContainerUnknownImage(t *testing.T) {
	m, engine := newTestManager(t)

	_, err := m.CreateTestContainer(context.Background(), domain.ContainerSpec{
		Image:   "non-existent-image:latest",
		Command: "echo 'This should fail'",
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "failed to pull image non-existent-image:latest")
	assert.Equal(t, 0, engine.Count())
}

func TestPullPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("never", func(t *testing.T) {
		m, engine := newTestManager(t, WithPullPolicy(PullNever))
		_, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine:latest"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NotContains(t, engine.Calls(), "ImagePull")
	})

	t.Run("always", func(t *testing.T) {
		m, engine := newTestManager(t, WithPullPolicy(PullAlways))
		engine.AddImage("alpine:latest")
		_, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine"})
		require.NoError(t, err)
		assert.Contains(t, engine.Calls(), "ImagePull")
		assert.NotContains(t, engine.Calls(), "ImageInspectWithRaw")
	})

	t.Run("missing uses local image", func(t *testing.T) {
		m, engine := newTestManager(t)
		engine.AddImage("alpine:latest")
		_, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine"})
		require.NoError(t, err)
		assert.NotContains(t, engine.Calls(), "ImagePull")
	})
}

func TestParsePullPolicy(t *testing.T) {
	p, err := ParsePullPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PullMissing, p)

	p, err = ParsePullPolicy("always")
	require.NoError(t, err)
	assert.Equal(t, PullAlways, p)

	_, err = ParsePullPolicy("sometimes")
	assert.Error(t, err)
}

func TestCreateReplacesStaleTestContainer(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	first, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "sleep 30", Name: "python-test"})
	require.NoError(t, err)

	second, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "echo again", Name: "python-test"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "", engine.State(first.ID))
	assert.Equal(t, 1, engine.Count())
}

func TestCreateRefusesForeignNameClash(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	engine.AddImage("nginx:latest")
	resp, err := engine.ContainerCreate(ctx, &containerConfigForTest, nil, nil, nil, "web")
	require.NoError(t, err)

	_, err = m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Name: "web"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "created", engine.State(resp.ID), "unlabelled container is left alone")
}

func TestCreateNameMatchingIDPrefix(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	running, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "sleep 30", Name: "victim"})
	require.NoError(t, err)

	engine.AddImage("nginx:latest")
	foreign, err := engine.ContainerCreate(ctx, &containerConfigForTest, nil, nil, nil, "web")
	require.NoError(t, err)

	for _, name := range []string{running.ShortID(), shortID(foreign.ID), running.ID} {
		c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "echo hi", Name: name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name)
	}

	assert.Equal(t, "running", engine.State(running.ID), "container whose id matches the name is kept")
	assert.Equal(t, "created", engine.State(foreign.ID))
	assert.Equal(t, 5, engine.Count())
}

func TestListContainers(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	running, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "sleep 30", Name: "lifecycle-test"})
	require.NoError(t, err)
	exited, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine", Command: "echo done", Name: "alpine-test"})
	require.NoError(t, err)

	list, err := m.ListContainers(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, running.ID, list[0].ID)
	assert.Equal(t, "lifecycle-test", list[0].Name)
	assert.Equal(t, domain.StateRunning, list[0].State)
	assert.NotEmpty(t, list[0].IPAddress)

	list, err = m.ListContainers(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, exited.ID, list[0].ID, "newest first")
	assert.Equal(t, domain.StateExited, list[0].State)
}

func TestStopContainer(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "sleep 30"})
	require.NoError(t, err)

	waitErr := make(chan error, 1)
	var code int64
	go func() {
		var err error
		code, err = m.WaitContainer(ctx, c.ID)
		waitErr <- err
	}()

	require.NoError(t, m.StopContainer(ctx, c.ID))

	select {
	case err := <-waitErr:
		require.NoError(t, err)
		assert.Equal(t, int64(137), code)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after stop")
	}

	got, err := m.GetContainer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExited, got.State)
	assert.Equal(t, 137, got.ExitCode)
}

func TestMissingContainer(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetContainerLogs(ctx, "non-existent-container", domain.LogOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = m.StopContainer(ctx, "non-existent-container")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = m.RemoveContainer(ctx, "non-existent-container", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.WaitContainer(ctx, "non-existent-container")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.GetContainer(ctx, "non-existent-container")
	assert.True(t, IsNotFound(err))
}

func TestRemoveRunningContainer(t *testing.T) {
	m, engine := newTestManager(t)
	ctx := context.Background()

	c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "sleep 30"})
	require.NoError(t, err)

	err = m.RemoveContainer(ctx, c.ID, false)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, m.RemoveContainer(ctx, c.ID, true))
	assert.Equal(t, 0, engine.Count())
}

func TestWaitContainerCanceled(t *testing.T) {
	m, _ := newTestManager(t)

	c, err := m.CreateTestContainer(context.Background(), domain.ContainerSpec{Image: "busybox", Command: "sleep 30"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.WaitContainer(ctx, c.ID)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGetContainerLogsStreams(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine", Command: `sh -c "echo out; echo err >&2; exit 3"`})
	require.NoError(t, err)

	code, err := m.WaitContainer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), code)

	logs, err := m.GetContainerLogs(ctx, c.ID, domain.LogOptions{})
	require.NoError(t, err)
	assert.Equal(t, "out\nerr\n", logs)

	logs, err = m.GetContainerLogs(ctx, c.ID, domain.LogOptions{Stderr: true})
	require.NoError(t, err)
	assert.Equal(t, "err\n", logs)
}

func TestGetContainerLogsTTY(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "alpine", Command: "echo raw", Tty: true})
	require.NoError(t, err)

	logs, err := m.GetContainerLogs(ctx, c.ID, domain.LogOptions{})
	require.NoError(t, err)
	assert.Equal(t, "raw\n", logs)
}

func TestFollowLogs(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "sleep 30"})
	require.NoError(t, err)

	done := make(chan error, 1)
	var stdout, stderr bytes.Buffer
	go func() { done <- m.FollowLogs(ctx, c.ID, &stdout, &stderr) }()

	require.NoError(t, m.StopContainer(ctx, c.ID))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return after stop")
	}
}

func TestCleanupTestContainers(t *testing.T) {
	ctx := context.Background()
	engine := dockertest.New()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	a := NewManager(engine, WithSession("a"), WithMetrics(collector))
	b := NewManager(engine, WithSession("b"))

	for _, spec := range []domain.ContainerSpec{
		{Image: "alpine", Command: "echo 'Alpine Linux test'", Name: "alpine-test"},
		{Image: "busybox", Command: "sleep 30", Name: "busybox-test"},
	} {
		_, err := a.CreateTestContainer(ctx, spec)
		require.NoError(t, err)
	}
	_, err := b.CreateTestContainer(ctx, domain.ContainerSpec{Image: "python:3.11-slim", Command: `python -c 'print("Python container test")'`})
	require.NoError(t, err)

	engine.AddImage("nginx:latest")
	_, err = engine.ContainerCreate(ctx, &containerConfigForTest, nil, nil, nil, "unmanaged")
	require.NoError(t, err)

	n, err := a.CleanupTestContainers(ctx, domain.ScopeSession)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, engine.Count())

	n, err = b.CleanupTestContainers(ctx, domain.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, engine.Count(), "unlabelled container survives cleanup")

	n, err = a.CleanupTestContainers(ctx, domain.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.Calls().WithLabelValues("container_remove", "ok")))
}

func TestCleanupContinuesPastRemoveFailures(t *testing.T) {
	ctx := context.Background()
	engine := dockertest.New()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	m := NewManager(engine, WithSession("s"), WithMetrics(collector))

	var ids []string
	for _, name := range []string{"one", "two", "three"} {
		c, err := m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "busybox", Command: "sleep 30", Name: name})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	engine.FailRemove(ids[0], errors.New("device or resource busy"))
	engine.FailRemove(ids[2], errors.New("driver failed to remove root filesystem"))

	n, err := m.CleanupTestContainers(ctx, domain.ScopeAll)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), shortID(ids[0]))
	assert.Contains(t, err.Error(), shortID(ids[2]))
	assert.Equal(t, 2, engine.Count())
	assert.Equal(t, "", engine.State(ids[1]))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Calls().WithLabelValues("container_remove", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.Calls().WithLabelValues("container_remove", "error")))

	engine.FailRemove(ids[0], nil)
	engine.FailRemove(ids[2], nil)
	n, err = m.CleanupTestContainers(ctx, domain.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, engine.Count())
}

func TestMissingResourceMetrics(t *testing.T) {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	m, _ := newTestManager(t, WithMetrics(collector))
	ctx := context.Background()

	_, err := m.WaitContainer(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.CreateTestContainer(ctx, domain.ContainerSpec{Image: "non-existent-image:latest"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	calls := collector.Calls()
	assert.Equal(t, 1.0, testutil.ToFloat64(calls.WithLabelValues("container_wait", "not_found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(calls.WithLabelValues("container_wait", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(calls.WithLabelValues("image_pull", "not_found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(calls.WithLabelValues("image_pull", "error")))
}

func TestClose(t *testing.T) {
	engine := dockertest.New()
	m := NewManager(engine)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.True(t, engine.Closed())

	closes := 0
	for _, call := range engine.Calls() {
		if call == "Close" {
			closes++
		}
	}
	assert.Equal(t, 1, closes)
}

func TestConnect(t *testing.T) {
	engine := dockertest.New()
	engine.FailPings(2)
	require.NoError(t, Connect(context.Background(), engine, 3, time.Millisecond))

	engine.FailPings(5)
	err := Connect(context.Background(), engine, 1, time.Millisecond)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to connect to docker daemon"))
}

func TestSessionDefaultsToUUID(t *testing.T) {
	m := NewManager(dockertest.New())
	assert.Len(t, m.Session(), 36)
}
