package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerSpecArgs(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"", nil},
		{"echo 'Hello from Docker CI/CD Manager!'", []string{"echo", "Hello from Docker CI/CD Manager!"}},
		{"sleep 30", []string{"sleep", "30"}},
		{`python -c 'print("Python container test")'`, []string{"python", "-c", `print("Python container test")`}},
	}
	for _, tt := range tests {
		args, err := ContainerSpec{Image: "busybox", Command: tt.command}.Args()
		require.NoError(t, err, tt.command)
		assert.Equal(t, tt.want, args, tt.command)
	}
}

func TestContainerSpecValidate(t *testing.T) {
	assert.ErrorIs(t, ContainerSpec{}.Validate(), ErrImageRequired)
	assert.Error(t, ContainerSpec{Image: "alpine", Command: "echo 'unterminated"}.Validate())
	assert.NoError(t, ContainerSpec{Image: "alpine", Command: "true"}.Validate())
}

func TestContainerSpecEnvList(t *testing.T) {
	assert.Nil(t, ContainerSpec{}.EnvList())
	assert.Equal(t, []string{"CI=true"}, ContainerSpec{Env: map[string]string{"CI": "true"}}.EnvList())
}

func TestContainerHelpers(t *testing.T) {
	c := Container{ID: "0123456789abcdef0123", State: StateRunning, Labels: map[string]string{LabelTest: "true"}}
	assert.Equal(t, "0123456789ab", c.ShortID())
	assert.True(t, c.IsTest())
	assert.True(t, c.Running())
	assert.Equal(t, "abc", Container{ID: "abc"}.ShortID())
	assert.False(t, Container{}.IsTest())
}

func TestLogOptionsStreams(t *testing.T) {
	out, errs := LogOptions{}.Streams()
	assert.True(t, out)
	assert.True(t, errs)

	out, errs = LogOptions{Stderr: true}.Streams()
	assert.False(t, out)
	assert.True(t, errs)
}

func TestParseCleanupScope(t *testing.T) {
	assert.Equal(t, ScopeSession, ParseCleanupScope("session"))
	assert.Equal(t, ScopeAll, ParseCleanupScope(""))
	assert.Equal(t, ScopeAll, ParseCleanupScope("all"))
	assert.Equal(t, "session", ScopeSession.String())
}
