package domain

// EngineInfo is the subset of the engine's system information callers use.
type EngineInfo struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	ServerVersion     string `json:"server_version" yaml:"server_version"`
	OperatingSystem   string `json:"operating_system" yaml:"operating_system"`
	Architecture      string `json:"architecture" yaml:"architecture"`
	NCPU              int    `json:"ncpu" yaml:"ncpu"`
	MemTotal          int64  `json:"mem_total" yaml:"mem_total"`
	Containers        int    `json:"containers" yaml:"containers"`
	ContainersRunning int    `json:"containers_running" yaml:"containers_running"`
	ContainersPaused  int    `json:"containers_paused" yaml:"containers_paused"`
	ContainersStopped int    `json:"containers_stopped" yaml:"containers_stopped"`
	Images            int    `json:"images" yaml:"images"`
}

// LogOptions controls which log lines are fetched. The zero value fetches
// both streams without timestamps.
type LogOptions struct {
	Stdout     bool
	Stderr     bool
	Timestamps bool
	Tail       string // number of lines or "all"
}

// Streams returns the stream selection with the zero value expanded.
func (o LogOptions) Streams() (stdout, stderr bool) {
	if !o.Stdout && !o.Stderr {
		return true, true
	}
	return o.Stdout, o.Stderr
}

// BuildRequest describes an image build from a git repository.
type BuildRequest struct {
	RepoURL    string `json:"repo_url"`
	Ref        string `json:"ref,omitempty"` // branch name; default branch when empty
	Image      string `json:"image"`
	Dockerfile string `json:"dockerfile,omitempty"`
}
