package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const graph = `
blocks:
  - name: src
    kind: null_source
  - name: head
    kind: head
    params: {n: 4096}
  - name: sink
    kind: null_sink
connections:
  - {from: src, to: head}
  - {from: head, to: sink}
`

func writeGraph(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(graph), 0o600))
	return path
}

func TestRun(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-log-format", "json", writeGraph(t)}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "null_sink")
	assert.Contains(t, stdout.String(), "total:")

	// every log line is a JSON object
	for _, line := range strings.Split(strings.TrimSpace(stderr.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		assert.Contains(t, rec, "msg")
	}
	assert.Contains(t, stderr.String(), "Flowgraph finished.")
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	assert.NoError(t, run(ctx, []string{"-log-level", "error", writeGraph(t)}, &stdout, &stderr))
}

func TestRunFlags(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-list-kinds"}, &stdout, &stderr))
	assert.Contains(t, strings.Split(stdout.String(), "\n"), "fir_filter")

	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "sigrun")

	assert.Error(t, run(context.Background(), nil, &stdout, &stderr))
	assert.Error(t, run(context.Background(), []string{"-no-such-flag"}, &stdout, &stderr))
	assert.Error(t, run(context.Background(), []string{"-log-level", "loud", writeGraph(t)}, &stdout, &stderr))
	assert.Error(t, run(context.Background(), []string{filepath.Join(t.TempDir(), "none.yaml")}, &stdout, &stderr))
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := newLogger("warn", "text", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown k=1")
}
