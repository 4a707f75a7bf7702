package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPoliciesCommandMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  max_size: 7\n  ttl:\n    low: 2m\n"), 0o644))

	cmd := newPoliciesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var got struct {
		Policies map[string]map[string]any `yaml:"policies"`
		Queue    struct {
			MaxSize    int               `yaml:"max_size"`
			TTL        map[string]string `yaml:"ttl"`
			MaxRetries map[string]int    `yaml:"max_retries"`
		} `yaml:"queue"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got.Policies, "connection")
	assert.Contains(t, got.Policies, "critical")
	assert.Equal(t, 7, got.Queue.MaxSize)
	assert.Equal(t, "2m0s", got.Queue.TTL["low"])
	assert.Equal(t, "5s", got.Queue.TTL["emergency"])
	assert.Equal(t, 1, got.Queue.MaxRetries["emergency"])
}

func TestPoliciesCommandRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  max_retries:\n    emergency: 4\n"), 0o644))

	cmd := newPoliciesCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"-f", path})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestNewLogger(t *testing.T) {
	l := newLogger("json", "debug")
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	assert.IsType(t, &slog.JSONHandler{}, l.Handler())

	l = newLogger("text", "bogus")
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
	assert.IsType(t, &slog.TextHandler{}, l.Handler())
}
