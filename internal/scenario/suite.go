package scenario

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"gopkg.in/yaml.v3"
)

//go:embed suites/*.yaml
var builtinSuites embed.FS

// Suite is a named set of test containers run together.
type Suite struct {
	Name       string                 `yaml:"name"`
	Containers []domain.ContainerSpec `yaml:"containers"`
}

// Validate checks every container spec and that names are unique.
func (s Suite) Validate() error {
	if len(s.Containers) == 0 {
		return fmt.Errorf("suite %q has no containers", s.Name)
	}
	seen := make(map[string]bool, len(s.Containers))
	for i, spec := range s.Containers {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("suite %q container %d: %w", s.Name, i, err)
		}
		if spec.Name == "" {
			continue
		}
		if seen[spec.Name] {
			return fmt.Errorf("suite %q: duplicate container name %q", s.Name, spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

// LoadSuite decodes and validates a YAML suite.
func LoadSuite(r io.Reader) (Suite, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Suite
	if err := dec.Decode(&s); err != nil {
		return Suite{}, fmt.Errorf("failed to decode suite: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Suite{}, err
	}
	return s, nil
}

// LoadSuiteFile reads a suite from disk.
func LoadSuiteFile(name string) (Suite, error) {
	f, err := os.Open(name)
	if err != nil {
		return Suite{}, err
	}
	defer f.Close()
	return LoadSuite(f)
}

// Builtin returns one of the embedded suites ("basic" or "advanced").
func Builtin(name string) (Suite, error) {
	f, err := builtinSuites.Open(path.Join("suites", name+".yaml"))
	if err != nil {
		return Suite{}, fmt.Errorf("unknown builtin suite %q", name)
	}
	defer f.Close()
	return LoadSuite(f)
}
