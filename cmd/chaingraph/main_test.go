// Package main tests for the ChainGraph CLI application
package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureRun captures stdout while running the CLI with the given args.
func captureRun(t *testing.T, args ...string) (string, int) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	code := run(append([]string{"chaingraph"}, args...), w)
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String(), code
}

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name      string
		version   string
		commit    string
		buildTime string
		want      string
	}{
		{
			name:      "dev defaults",
			version:   "dev",
			commit:    "unknown",
			buildTime: "unknown",
			want:      "ChainGraph dev (commit: unknown, built: unknown)\n",
		},
		{
			name:      "release values",
			version:   "v1.0.0",
			commit:    "abc123",
			buildTime: "2026-01-01",
			want:      "ChainGraph v1.0.0 (commit: abc123, built: 2026-01-01)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldVersion, oldCommit, oldBuildTime := Version, Commit, BuildTime
			Version, Commit, BuildTime = tt.version, tt.commit, tt.buildTime
			defer func() { Version, Commit, BuildTime = oldVersion, oldCommit, oldBuildTime }()

			out, code := captureRun(t, "version")
			assert.Equal(t, 0, code)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestTypesCommandListsCatalog(t *testing.T) {
	out, code := captureRun(t, "types")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "core.constant.number")
	assert.Contains(t, out, "math.sum")
	assert.Contains(t, out, "string.concat")
}

func TestDemoCommandCompletes(t *testing.T) {
	out, code := captureRun(t, "demo")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "executionCompleted")
	assert.Contains(t, out, "state=completed completed=3 failed=0 skipped=0")
}

func TestUsageOnUnknownCommand(t *testing.T) {
	for _, args := range [][]string{nil, {"help"}} {
		out, code := captureRun(t, args...)
		assert.Equal(t, 0, code)
		assert.Contains(t, out, "usage: chaingraph")
	}
}
