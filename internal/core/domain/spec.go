package domain

import (
	"fmt"

	"github.com/google/shlex"
)

// ContainerSpec describes a test container to create.
type ContainerSpec struct {
	Image      string            `json:"image" yaml:"image"`
	Command    string            `json:"command,omitempty" yaml:"command,omitempty"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Labels     map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Ports      []string          `json:"ports,omitempty" yaml:"ports,omitempty"`   // docker run -p syntax
	Memory     string            `json:"memory,omitempty" yaml:"memory,omitempty"` // e.g. "256m"
	Tty        bool              `json:"tty,omitempty" yaml:"tty,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
}

// Validate checks the fields the engine cannot default.
func (s ContainerSpec) Validate() error {
	if s.Image == "" {
		return ErrImageRequired
	}
	if _, err := s.Args(); err != nil {
		return err
	}
	return nil
}

// Args splits Command using shell quoting rules. An empty command yields nil
// so the image's default command runs.
func (s ContainerSpec) Args() ([]string, error) {
	if s.Command == "" {
		return nil, nil
	}
	args, err := shlex.Split(s.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", s.Command, err)
	}
	return args, nil
}

// EnvList renders Env as KEY=VALUE pairs.
func (s ContainerSpec) EnvList() []string {
	if len(s.Env) == 0 {
		return nil
	}
	env := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
