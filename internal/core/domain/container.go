package domain

import (
	"time"
)

// Container represents a container as reported by the engine.
type Container struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Image     string            `json:"image" yaml:"image"`
	Status    string            `json:"status" yaml:"status"`
	State     string            `json:"state" yaml:"state"` // running, exited, etc.
	IPAddress string            `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	Labels    map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Created   time.Time         `json:"created" yaml:"created"`
	ExitCode  int               `json:"exit_code" yaml:"exit_code"`
}

const shortIDLen = 12

// ShortID returns the abbreviated id the docker CLI prints.
func (c Container) ShortID() string {
	if len(c.ID) <= shortIDLen {
		return c.ID
	}
	return c.ID[:shortIDLen]
}

// IsTest reports whether the container carries the test label.
func (c Container) IsTest() bool {
	return c.Labels[LabelTest] == "true"
}

// Running reports whether the engine considers the container running.
func (c Container) Running() bool {
	return c.State == StateRunning
}

// Container states as reported by the engine.
const (
	StateCreated = "created"
	StateRunning = "running"
	StateExited  = "exited"
)
