package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty path", input: "", expected: ""},
		{name: "tilde only", input: "~", expected: homeDir},
		{name: "tilde with subpath", input: "~/.stepwise/config.yaml", expected: filepath.Join(homeDir, ".stepwise/config.yaml")},
		{name: "absolute path unchanged", input: "/etc/stepwise", expected: "/etc/stepwise"},
		{name: "relative path cleaned", input: "./workflows/../catalog.json", expected: "catalog.json"},
		{name: "other user left alone", input: "~bob/x", expected: "~bob/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpandPathWithEnvVar(t *testing.T) {
	t.Setenv("STEPWISE_TEST_DIR", "/test/path")

	got, err := ExpandPath("$STEPWISE_TEST_DIR/subdir")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/test/path", "subdir"), got)
}

func TestExpandPaths(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPaths([]string{"~/foo", "bar/"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(homeDir, "foo"), "bar"}, got)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, EnsureDir(""))
}

func TestIsWorkflowFile(t *testing.T) {
	assert.True(t, IsWorkflowFile("a/b.yaml"))
	assert.True(t, IsWorkflowFile("B.YML"))
	assert.False(t, IsWorkflowFile("catalog.json"))
	assert.False(t, IsWorkflowFile("yaml"))
}
