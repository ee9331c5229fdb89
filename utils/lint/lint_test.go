package lint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kris-hansen/stepwise/utils/catalog"
	"github.com/kris-hansen/stepwise/utils/schema"
)

const goodWorkflow = `workflow:
  name: good
  steps:
    - name: fetch
      provider:
        type: http
  actions:
    - name: notify
      provider:
        type: slack
        with:
          message: "{{ steps.fetch.results }}"
`

const warningWorkflow = `workflow:
  name: warns
  steps:
    - name: fetch
      provider:
        type: http
        with:
          url: "{{ something.odd }}"
`

const badWorkflow = `workflow:
  steps:
    - name: fetch
      provider:
        type: http
        with:
          url: "{{ steps.fetch.results }}"
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestCollect(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.yaml":             goodWorkflow,
		"nested/b.yml":       goodWorkflow,
		"drafts/c.yaml":      goodWorkflow,
		"x.tmpl.yaml":        goodWorkflow,
		"notes.txt":          "not a workflow",
		".hidden/d.yaml":     goodWorkflow,
		"node_modules/e.yml": goodWorkflow,
		IgnoreFile:           "drafts/\n",
	})

	files, err := Collect([]string{root}, []string{"*.tmpl.yaml"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.yaml"),
		filepath.Join(root, "nested", "b.yml"),
	}, files)

	// Explicit files bypass the filters, duplicates collapse.
	explicit := filepath.Join(root, "notes.txt")
	files, err = Collect([]string{explicit, explicit}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{explicit}, files)

	_, err = Collect([]string{filepath.Join(root, "missing")}, nil)
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	r := &Runner{}

	t.Run("clean", func(t *testing.T) {
		res := r.Check("good.yaml", []byte(goodWorkflow))
		assert.Empty(t, res.Findings)
		assert.Len(t, res.Fingerprint, 16)
		assert.False(t, res.Failed(true))
	})

	t.Run("schema and scope errors", func(t *testing.T) {
		res := r.Check("bad.yaml", []byte(badWorkflow))
		require.Len(t, res.Findings, 2)
		assert.Equal(t, StageSchema, res.Findings[0].Stage)
		assert.Equal(t, "'name' field is required in 'workflow'", res.Findings[0].Message)
		assert.Equal(t, StageScope, res.Findings[1].Stage)
		assert.Equal(t, "fetch", res.Findings[1].Step)
		assert.Equal(t, "provider.with.url", res.Findings[1].Path)
		assert.True(t, res.Failed(false))
	})

	t.Run("warnings block only when strict", func(t *testing.T) {
		res := r.Check("warn.yaml", []byte(warningWorkflow))
		require.Len(t, res.Findings, 1)
		assert.Equal(t, 1, res.Count("warning"))
		assert.False(t, res.Failed(false))
		assert.True(t, res.Failed(true))
	})

	t.Run("syntax error stops early", func(t *testing.T) {
		res := r.Check("broken.yaml", []byte("workflow:\n  name: [\n"))
		require.Len(t, res.Findings, 1)
		assert.Equal(t, schema.SeverityFatal, res.Findings[0].Severity)
	})

	t.Run("parse error", func(t *testing.T) {
		src := `workflow:
  name: x
  steps:
    - name: a
      if: "{{ nope }}"
      condition:
        - type: assert
          assert: "1 == 1"
      provider:
        type: console
`
		res := r.Check("parse.yaml", []byte(src))
		var stages []string
		for _, f := range res.Findings {
			stages = append(stages, f.Stage)
		}
		assert.Contains(t, stages, StageParse)
	})
}

func TestCheckWithContext(t *testing.T) {
	r := &Runner{
		Providers: catalog.Catalog{{Type: "http", CanQuery: true}, {Type: "slack", CanNotify: true}},
		Secrets:   catalog.Secrets{},
	}
	src := `workflow:
  name: secrets
  steps:
    - name: fetch
      provider:
        type: http
        with:
          token: "{{ secrets.TOKEN }}"
`
	res := r.Check("s.yaml", []byte(src))
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "Variable: 'secrets.TOKEN' - secret 'TOKEN' not found.", res.Findings[0].Message)
}

func TestRun(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"good.yaml": goodWorkflow,
		"warn.yaml": warningWorkflow,
	})

	r := &Runner{Workers: 2}
	report, err := r.Run(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	assert.Equal(t, filepath.Join(root, "good.yaml"), report.Files[0].Path)
	assert.False(t, report.Failed())

	r.Strict = true
	report, err = r.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.Equal(t, 1, report.FailedFiles())
}

func TestRunCancelled(t *testing.T) {
	root := writeFiles(t, map[string]string{"good.yaml": goodWorkflow})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Runner{Workers: 1}).Run(ctx, []string{root})
	assert.ErrorIs(t, err, context.Canceled)
}
