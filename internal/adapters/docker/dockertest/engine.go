// Package dockertest provides an in-memory Docker engine for tests.
//
// Containers run a tiny command interpreter: "echo" exits 0 and prints its
// arguments, "sleep" keeps running until stopped, "false" exits 1, a
// python -c 'print("...")' one-liner prints the literal, and sh -c runs a
// ";"-separated script of echo, "echo ... >&2" and "exit N" statements.
// Everything else exits 0 without output.
package dockertest

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// DefaultRegistry holds the images New makes pullable.
var DefaultRegistry = []string{
	"alpine:latest",
	"busybox:latest",
	"ubuntu:latest",
	"python:3.11-slim",
}

// Build records one ImageBuild call.
type Build struct {
	Tags       []string
	Labels     map[string]string
	Dockerfile string
	Files      []string
}

type fakeContainer struct {
	id         string
	name       string
	seq        int
	config     container.Config
	hostConfig container.HostConfig
	created    time.Time
	state      string
	exitCode   int
	stdout     string
	stderr     string
	ip         string
	done       chan struct{}
}

func (c *fakeContainer) running() bool {
	return c.state == "running"
}

func (c *fakeContainer) exit(code int) {
	if c.running() {
		close(c.done)
	}
	c.state = "exited"
	c.exitCode = code
	c.ip = ""
}

// Engine is an in-memory implementation of the docker.Engine interface.
type Engine struct {
	mu         sync.Mutex
	registry   map[string]bool
	images     map[string]bool
	containers map[string]*fakeContainer
	builds     []Build
	seq        int
	closed     bool
	pingErrs   int
	removeErrs map[string]error
	calls      []string
}

// New returns an engine with no local images and DefaultRegistry pullable.
func New() *Engine {
	e := &Engine{
		registry:   make(map[string]bool),
		images:     make(map[string]bool),
		containers: make(map[string]*fakeContainer),
		removeErrs: make(map[string]error),
	}
	for _, ref := range DefaultRegistry {
		e.registry[ref] = true
	}
	return e
}

// AddImage makes ref available locally without a pull.
func (e *Engine) AddImage(ref string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[normalize(ref)] = true
}

// HasImage reports whether ref is available locally.
func (e *Engine) HasImage(ref string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[normalize(ref)]
}

// FailPings makes the next n Ping calls fail.
func (e *Engine) FailPings(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pingErrs = n
}

// FailRemove makes every ContainerRemove of the container with this full id
// fail with err. A nil err clears the failure.
func (e *Engine) FailRemove(id string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.removeErrs, id)
		return
	}
	e.removeErrs[id] = err
}

// SetIP overrides the address a running container reports.
func (e *Engine) SetIP(id, ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.lookup(id); c != nil {
		c.ip = ip
	}
}

// State returns the container's state, or "" when it does not exist.
func (e *Engine) State(id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.lookup(id); c != nil {
		return c.state
	}
	return ""
}

// HostConfig returns the host config the container was created with.
func (e *Engine) HostConfig(id string) (container.HostConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.lookup(id); c != nil {
		return c.hostConfig, true
	}
	return container.HostConfig{}, false
}

// Builds returns every recorded ImageBuild call.
func (e *Engine) Builds() []Build {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Build(nil), e.builds...)
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Calls returns the names of the API methods invoked, in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Count returns how many containers exist.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.containers)
}

func (e *Engine) record(call string) {
	e.calls = append(e.calls, call)
}

// lookup resolves a full id, an id prefix or a name. Callers hold mu.
func (e *Engine) lookup(ref string) *fakeContainer {
	if c, ok := e.containers[ref]; ok {
		return c
	}
	name := strings.TrimPrefix(ref, "/")
	for _, c := range e.containers {
		if c.name == name && name != "" {
			return c
		}
	}
	if len(ref) >= 4 {
		for id, c := range e.containers {
			if strings.HasPrefix(id, ref) {
				return c
			}
		}
	}
	return nil
}

func noSuchContainer(ref string) error {
	return errdefs.NotFound(fmt.Errorf("Error response from daemon: No such container: %s", ref))
}

func normalize(ref string) string {
	slash := strings.LastIndex(ref, "/")
	if !strings.Contains(ref[slash+1:], ":") && !strings.Contains(ref, "@") {
		return ref + ":latest"
	}
	return ref
}

func (e *Engine) Ping(ctx context.Context) (types.Ping, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("Ping")
	if e.pingErrs > 0 {
		e.pingErrs--
		return types.Ping{}, errors.New("Cannot connect to the Docker daemon at unix:///var/run/docker.sock")
	}
	return types.Ping{APIVersion: "1.44", OSType: "linux"}, nil
}

func (e *Engine) Info(ctx context.Context) (types.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("Info")

	info := types.Info{
		ID:              "FAKE:ENGINE",
		Name:            "dockertest",
		ServerVersion:   "25.0.6",
		OperatingSystem: "dockertest",
		Architecture:    "x86_64",
		NCPU:            4,
		MemTotal:        8 << 30,
		Containers:      len(e.containers),
		Images:          len(e.images),
	}
	for _, c := range e.containers {
		if c.running() {
			info.ContainersRunning++
		} else {
			info.ContainersStopped++
		}
	}
	return info, nil
}

func (e *Engine) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerCreate")

	if config == nil || config.Image == "" {
		return container.CreateResponse{}, errdefs.InvalidParameter(errors.New("config.Image is required"))
	}
	if !e.images[normalize(config.Image)] {
		return container.CreateResponse{}, errdefs.NotFound(fmt.Errorf("No such image: %s", config.Image))
	}
	if containerName != "" {
		for _, c := range e.containers {
			if c.name == containerName {
				return container.CreateResponse{}, errdefs.Conflict(fmt.Errorf(
					"Conflict. The container name \"/%s\" is already in use by container %q. You have to remove (or rename) that container to be able to reuse that name.",
					containerName, c.id))
			}
		}
	}

	e.seq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("container-%d", e.seq)))
	id := hex.EncodeToString(sum[:])
	name := containerName
	if name == "" {
		name = fmt.Sprintf("dockertest_%d", e.seq)
	}

	c := &fakeContainer{
		id:      id,
		name:    name,
		seq:     e.seq,
		config:  *config,
		created: time.Now(),
		state:   "created",
		done:    make(chan struct{}),
	}
	if hostConfig != nil {
		c.hostConfig = *hostConfig
	}
	e.containers[id] = c
	return container.CreateResponse{ID: id}, nil
}

var printLiteral = regexp.MustCompile(`print\("([^"]*)"\)`)

func (e *Engine) ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerStart")

	c := e.lookup(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	if c.running() {
		return nil
	}

	c.state = "running"
	c.done = make(chan struct{})
	c.ip = fmt.Sprintf("172.17.0.%d", c.seq+1)

	args := []string(c.config.Cmd)
	if len(args) == 0 {
		c.exit(0)
		return nil
	}
	switch args[0] {
	case "sleep":
		// runs until stopped
	case "echo":
		c.stdout += strings.Join(args[1:], " ") + "\n"
		c.exit(0)
	case "false":
		c.exit(1)
	case "sh":
		if len(args) > 2 && args[1] == "-c" {
			c.exit(c.runScript(args[2]))
			return nil
		}
		c.exit(0)
	case "python", "python3":
		for _, arg := range args[1:] {
			if m := printLiteral.FindStringSubmatch(arg); m != nil {
				c.stdout += m[1] + "\n"
			}
		}
		c.exit(0)
	default:
		c.exit(0)
	}
	return nil
}

func (c *fakeContainer) runScript(script string) int {
	for _, stmt := range strings.Split(script, ";") {
		fields := strings.Fields(stmt)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "echo":
			if n := len(fields); n > 1 && fields[n-1] == ">&2" {
				c.stderr += strings.Join(fields[1:n-1], " ") + "\n"
			} else {
				c.stdout += strings.Join(fields[1:], " ") + "\n"
			}
		case "exit":
			code := 0
			if len(fields) > 1 {
				fmt.Sscanf(fields[1], "%d", &code)
			}
			return code
		}
	}
	return 0
}

func (e *Engine) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerStop")

	c := e.lookup(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	if c.running() {
		// sleep ignores SIGTERM as PID 1, so the daemon kills it
		c.exit(137)
	}
	return nil
}

func (e *Engine) ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerRemove")

	c := e.lookup(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	if err := e.removeErrs[c.id]; err != nil {
		return err
	}
	if c.running() {
		if !options.Force {
			return errdefs.Conflict(fmt.Errorf("You cannot remove a running container %s. Stop the container before attempting removal or force remove", c.id))
		}
		c.exit(137)
	}
	delete(e.containers, c.id)
	return nil
}

func (e *Engine) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerInspect")

	c := e.lookup(containerID)
	if c == nil {
		return types.ContainerJSON{}, noSuchContainer(containerID)
	}

	config := c.config
	hostConfig := c.hostConfig
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:      c.id,
			Name:    "/" + c.name,
			Created: c.created.Format(time.RFC3339Nano),
			Image:   "sha256:" + c.config.Image,
			State: &types.ContainerState{
				Status:   c.state,
				Running:  c.running(),
				ExitCode: c.exitCode,
			},
			HostConfig: &hostConfig,
		},
		Config:          &config,
		NetworkSettings: &types.NetworkSettings{Networks: c.networks()},
	}, nil
}

func (c *fakeContainer) networks() map[string]*network.EndpointSettings {
	return map[string]*network.EndpointSettings{
		"bridge": {IPAddress: c.ip},
	}
}

func (c *fakeContainer) status() string {
	switch c.state {
	case "running":
		return "Up Less than a second"
	case "exited":
		return fmt.Sprintf("Exited (%d) Less than a second ago", c.exitCode)
	default:
		return "Created"
	}
}

func (e *Engine) ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerList")

	labels := options.Filters.Get("label")
	var matched []*fakeContainer
	for _, c := range e.containers {
		if !options.All && !c.running() {
			continue
		}
		if !matchLabels(c.config.Labels, labels) {
			continue
		}
		matched = append(matched, c)
	}
	// newest first, like the daemon
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	out := make([]types.Container, 0, len(matched))
	for _, c := range matched {
		out = append(out, types.Container{
			ID:              c.id,
			Names:           []string{"/" + c.name},
			Image:           c.config.Image,
			Command:         strings.Join(c.config.Cmd, " "),
			Created:         c.created.Unix(),
			Labels:          c.config.Labels,
			State:           c.state,
			Status:          c.status(),
			NetworkSettings: &types.SummaryNetworkSettings{Networks: c.networks()},
		})
	}
	return out, nil
}

func matchLabels(have map[string]string, filters []string) bool {
	for _, f := range filters {
		k, v, hasValue := strings.Cut(f, "=")
		got, ok := have[k]
		if !ok || (hasValue && got != v) {
			return false
		}
	}
	return true
}

func (e *Engine) ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerLogs")

	c := e.lookup(containerID)
	if c == nil {
		return nil, noSuchContainer(containerID)
	}

	var buf bytes.Buffer
	if c.config.Tty {
		if options.ShowStdout {
			buf.WriteString(c.stdout)
		}
	} else {
		if options.ShowStdout && c.stdout != "" {
			stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(c.stdout))
		}
		if options.ShowStderr && c.stderr != "" {
			stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(c.stderr))
		}
	}

	if !options.Follow || !c.running() {
		return io.NopCloser(&buf), nil
	}

	done := c.done
	pr, pw := io.Pipe()
	go func() {
		if buf.Len() > 0 {
			if _, err := pw.Write(buf.Bytes()); err != nil {
				return
			}
		}
		select {
		case <-done:
			pw.Close()
		case <-ctx.Done():
			pw.CloseWithError(ctx.Err())
		}
	}()
	return pr, nil
}

func (e *Engine) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ContainerWait")

	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	c := e.lookup(containerID)
	if c == nil {
		errCh <- noSuchContainer(containerID)
		return statusCh, errCh
	}
	if !c.running() {
		statusCh <- container.WaitResponse{StatusCode: int64(c.exitCode)}
		return statusCh, errCh
	}

	done := c.done
	go func() {
		select {
		case <-done:
			e.mu.Lock()
			code := c.exitCode
			e.mu.Unlock()
			statusCh <- container.WaitResponse{StatusCode: int64(code)}
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return statusCh, errCh
}

func (e *Engine) ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ImageInspectWithRaw")

	ref := normalize(imageID)
	if !e.images[ref] {
		return types.ImageInspect{}, nil, errdefs.NotFound(fmt.Errorf("Error response from daemon: No such image: %s", imageID))
	}
	return types.ImageInspect{ID: "sha256:" + ref, RepoTags: []string{ref}}, nil, nil
}

func (e *Engine) ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ImagePull")

	ref := normalize(refStr)
	if !e.registry[ref] {
		return nil, errdefs.NotFound(fmt.Errorf("pull access denied for %s, repository does not exist or may require 'docker login'", strings.Split(ref, ":")[0]))
	}
	e.images[ref] = true

	stream := fmt.Sprintf("{\"status\":\"Pulling from library/%[1]s\"}\n{\"status\":\"Status: Downloaded newer image for %[1]s\"}\n", ref)
	return io.NopCloser(strings.NewReader(stream)), nil
}

func (e *Engine) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	var files []string
	tr := tar.NewReader(buildContext)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.ImageBuildResponse{}, errdefs.InvalidParameter(fmt.Errorf("invalid build context: %w", err))
		}
		files = append(files, hdr.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ImageBuild")

	dockerfile := options.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	e.builds = append(e.builds, Build{
		Tags:       options.Tags,
		Labels:     options.Labels,
		Dockerfile: dockerfile,
		Files:      files,
	})

	found := false
	for _, f := range files {
		if strings.TrimPrefix(f, "./") == dockerfile {
			found = true
			break
		}
	}
	var stream string
	if !found {
		msg := fmt.Sprintf("Cannot locate specified Dockerfile: %s", dockerfile)
		stream = fmt.Sprintf("{\"errorDetail\":{\"message\":%q},\"error\":%q}\n", msg, msg)
	} else {
		for _, tag := range options.Tags {
			e.images[normalize(tag)] = true
		}
		stream = "{\"stream\":\"Step 1/1 : FROM scratch\\n\"}\n{\"stream\":\"Successfully built 0123456789ab\\n\"}\n"
	}
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(stream)), OSType: "linux"}, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("Close")
	e.closed = true
	return nil
}
