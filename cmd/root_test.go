package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kris-hansen/stepwise/utils/lint"
	"github.com/kris-hansen/stepwise/utils/mustache"
)

const sampleWorkflow = `workflow:
  name: sample
  triggers:
    - type: manual
  steps:
    - name: fetch
      provider:
        type: http
        with:
          token: "{{ secrets.API_TOKEN }}"
  actions:
    - name: notify
      condition:
        - type: assert
          name: check
          assert: "{{ steps.fetch.results.status }} == 200"
      provider:
        type: slack
        with:
          message: "{{ steps.fetch.results }}"
`

const brokenWorkflow = `workflow:
  steps:
    - name: fetch
      provider:
        type: http
        with:
          url: "{{ steps.later.results }}"
`

// resetFlags puts every package flag back to its default, since cobra keeps
// state between Execute calls.
func resetFlags() {
	cfgFile, verbose, debug, logFormat = "", false, false, "human"
	catalogPath, secretsPath, noColor = "", "", true
	strict, jsonOutput, workers, ignoreGlobs, quietSuccess = false, false, 0, nil, false
	formatSteps, formatWrite, formatCheck = false, false, false
	irTree = false

	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, "--no-color"))
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stepwise version:")
}

func TestValidate(t *testing.T) {
	good := writeTemp(t, "good.yaml", sampleWorkflow)
	bad := writeTemp(t, "bad.yaml", brokenWorkflow)

	t.Run("clean file", func(t *testing.T) {
		out, err := executeCommand(t, "validate", good)
		require.NoError(t, err)
		assert.Contains(t, out, "1 file(s) checked, 0 failed")
	})

	t.Run("failing file", func(t *testing.T) {
		out, err := executeCommand(t, "validate", good, bad)
		assert.Equal(t, errFailed, err)
		assert.Contains(t, out, "Line 2, column 3: 'name' field is required in 'workflow'")
		assert.Contains(t, out, "step 'fetch', provider.with.url: Variable: 'steps.later.results' - a step named 'later' does not exist.")
		assert.Contains(t, out, "2 file(s) checked, 1 failed")
	})

	t.Run("json report", func(t *testing.T) {
		out, err := executeCommand(t, "validate", "--json", bad)
		assert.Equal(t, errFailed, err)

		var report lint.Report
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		require.Len(t, report.Files, 1)
		assert.Equal(t, bad, report.Files[0].Path)
		assert.NotEmpty(t, report.Files[0].Findings)
	})

	t.Run("missing secret with secrets file", func(t *testing.T) {
		secretsFile := writeTemp(t, "secrets.yaml", "OTHER_TOKEN: set\n")
		out, err := executeCommand(t, "validate", "--secrets", secretsFile, good)
		assert.Equal(t, errFailed, err)
		assert.Contains(t, out, "secret 'API_TOKEN' not found.")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := executeCommand(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.NotEqual(t, errFailed, err)
	})
}

func TestFormat(t *testing.T) {
	unordered := "workflow:\n  steps:\n    - name: a\n      provider:\n        type: console\n  # the name\n  name: demo\n"

	t.Run("prints formatted text", func(t *testing.T) {
		path := writeTemp(t, "flow.yaml", unordered)
		out, err := executeCommand(t, "format", path)
		require.NoError(t, err)
		assert.True(t, strings.Index(out, "name: demo") < strings.Index(out, "steps:"))
		assert.Contains(t, out, "# the name")
	})

	t.Run("check then write", func(t *testing.T) {
		path := writeTemp(t, "flow.yaml", unordered)
		_, err := executeCommand(t, "format", "--check", path)
		assert.Equal(t, errFailed, err)

		_, err = executeCommand(t, "format", "--write", path)
		require.NoError(t, err)

		_, err = executeCommand(t, "format", "--check", path)
		assert.NoError(t, err)
	})

	t.Run("syntax error", func(t *testing.T) {
		path := writeTemp(t, "flow.yaml", "workflow: [\n")
		_, err := executeCommand(t, "format", path)
		assert.Error(t, err)
	})
}

func TestDeps(t *testing.T) {
	path := writeTemp(t, "flow.yaml", sampleWorkflow)
	out, err := executeCommand(t, "deps", path)
	require.NoError(t, err)

	var deps mustache.Dependencies
	require.NoError(t, json.Unmarshal([]byte(out), &deps))
	assert.Equal(t, []string{"API_TOKEN"}, deps.Secrets)
	assert.Empty(t, deps.Providers)
}

func TestIR(t *testing.T) {
	path := writeTemp(t, "flow.yaml", sampleWorkflow)

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, "ir", path)
		require.NoError(t, err)

		var def map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &def))
		assert.Len(t, def["sequence"], 2)
	})

	t.Run("tree", func(t *testing.T) {
		out, err := executeCommand(t, "ir", "--tree", path)
		require.NoError(t, err)
		assert.Contains(t, out, "sample")
		assert.Contains(t, out, "trigger manual")
		assert.Contains(t, out, "step fetch (http)")
		assert.Contains(t, out, "assert check")
		assert.Contains(t, out, "action notify (slack)")
	})
}

func TestRoundtrip(t *testing.T) {
	path := writeTemp(t, "flow.yaml", sampleWorkflow)
	out, err := executeCommand(t, "roundtrip", path)
	require.NoError(t, err)
	assert.Contains(t, out, "name: sample")
	assert.Contains(t, out, "name: check")
}

func TestPath(t *testing.T) {
	path := writeTemp(t, "flow.yaml", sampleWorkflow)
	offset := strings.Index(sampleWorkflow, "http")

	out, err := executeCommand(t, "path", path, strconv.Itoa(offset))
	require.NoError(t, err)
	assert.Equal(t, "workflow.steps[0].provider.type\n", out)

	_, err = executeCommand(t, "path", path, "abc")
	assert.Error(t, err)
}
