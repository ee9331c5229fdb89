// Package lint checks many workflow files at once, for pre-commit hooks and
// CI. Each file goes through the schema validator, the parser and the scope
// validator.
package lint

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/kris-hansen/stepwise/utils/catalog"
	"github.com/kris-hansen/stepwise/utils/schema"
	"github.com/kris-hansen/stepwise/utils/scope"
	"github.com/kris-hansen/stepwise/utils/workflow"
)

// Stages a finding can come from.
const (
	StageRead   = "read"
	StageSchema = "schema"
	StageParse  = "parse"
	StageScope  = "scope"
)

// Finding is one problem in one file.
type Finding struct {
	Stage    string `json:"stage"`
	Severity string `json:"severity"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Path     string `json:"path,omitempty"`
	Step     string `json:"step,omitempty"`
	Message  string `json:"message"`
	Hint     string `json:"hint,omitempty"`
}

// Blocking reports whether the finding fails a run. Warnings only block in
// strict mode; info never does.
func (f Finding) Blocking(strict bool) bool {
	switch f.Severity {
	case schema.SeverityFatal, schema.SeverityError:
		return true
	case string(scope.SeverityWarning):
		return strict
	}
	return false
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path string `json:"path"`
	// Fingerprint is the xxhash of the file content, so reports can be
	// matched to the exact revision that was checked.
	Fingerprint string    `json:"fingerprint"`
	Findings    []Finding `json:"findings"`
}

// Count returns the number of findings with the given severity.
func (f FileResult) Count(severity string) int {
	n := 0
	for _, finding := range f.Findings {
		if finding.Severity == severity {
			n++
		}
	}
	return n
}

// Failed reports whether any finding blocks.
func (f FileResult) Failed(strict bool) bool {
	for _, finding := range f.Findings {
		if finding.Blocking(strict) {
			return true
		}
	}
	return false
}

// Report collects the results of a run in input order.
type Report struct {
	Files  []FileResult `json:"files"`
	Strict bool         `json:"strict"`
}

// Failed reports whether any file failed. It drives the exit code.
func (r *Report) Failed() bool {
	for _, f := range r.Files {
		if f.Failed(r.Strict) {
			return true
		}
	}
	return false
}

// FailedFiles returns the number of files that failed.
func (r *Report) FailedFiles() int {
	n := 0
	for _, f := range r.Files {
		if f.Failed(r.Strict) {
			n++
		}
	}
	return n
}

// Runner checks workflow files.
type Runner struct {
	Providers catalog.Catalog
	Secrets   catalog.Secrets
	Strict    bool
	Ignore    []string

	// Workers bounds concurrent file checks. Zero means one per CPU.
	Workers int

	Logger *zap.SugaredLogger
}

func (r *Runner) logger() *zap.SugaredLogger {
	if r.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return r.Logger
}

// Run collects the files under paths and checks them with a worker pool.
func (r *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	files, err := Collect(paths, r.Ignore)
	if err != nil {
		return nil, err
	}
	r.logger().Debugw("collected workflow files", "count", len(files))

	report := &Report{Files: make([]FileResult, len(files)), Strict: r.Strict}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				report.Files[idx] = r.CheckFile(files[idx])
			}
		}()
	}

	var cancelled error
feed:
	for i := range files {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, fmt.Errorf("lint run cancelled: %w", cancelled)
	}
	return report, nil
}

// CheckFile reads and checks one file.
func (r *Runner) CheckFile(path string) FileResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Path: path, Findings: []Finding{{
			Stage:    StageRead,
			Severity: schema.SeverityFatal,
			Message:  err.Error(),
		}}}
	}
	return r.Check(path, data)
}

// Check runs every validator over data. Parsing and scope checks are skipped
// when the text does not parse at all.
func (r *Runner) Check(path string, data []byte) FileResult {
	log := r.logger().With("file", path)
	result := FileResult{
		Path:        path,
		Fingerprint: fmt.Sprintf("%016x", xxhash.Sum64(data)),
		Findings:    []Finding{},
	}
	text := string(data)

	report := schema.Validate(text, schema.Options{Providers: r.Providers})
	for _, d := range report.Diagnostics {
		result.Findings = append(result.Findings, Finding{
			Stage:    StageSchema,
			Severity: d.Severity,
			Line:     d.Line,
			Column:   d.Column,
			Path:     d.Path,
			Message:  d.Message,
		})
	}
	if report.Fatal {
		log.Debugw("file does not parse", "fingerprint", result.Fingerprint)
		return result
	}

	wf, err := workflow.Load(text)
	if err == nil {
		_, err = workflow.FromWorkflow(wf, workflow.Options{Catalog: r.Providers})
	}
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Stage:    StageParse,
			Severity: schema.SeverityError,
			Message:  err.Error(),
		})
	}
	if wf == nil {
		return result
	}

	for _, d := range scope.ValidateWorkflow(wf, scope.Options{Providers: r.Providers, Secrets: r.Secrets}) {
		result.Findings = append(result.Findings, Finding{
			Stage:    StageScope,
			Severity: string(d.Severity),
			Path:     d.Field,
			Step:     d.Step,
			Message:  d.Message,
			Hint:     d.Hint,
		})
	}

	log.Debugw("checked file",
		"fingerprint", result.Fingerprint,
		"findings", len(result.Findings),
		"errors", result.Count(schema.SeverityError))
	return result
}
