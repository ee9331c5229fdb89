package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/stepwise/utils/lint"
	"github.com/kris-hansen/stepwise/utils/logger"
)

// errFailed is returned when the command already reported why it failed.
var errFailed = errors.New("validation failed")

var (
	strict       bool
	jsonOutput   bool
	workers      int
	ignoreGlobs  []string
	quietSuccess bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <file or directory> [more...]",
	Short: "Check workflow files",
	Long: `Check workflow files against the schema, parse them into the step tree and
check every {{ ... }} placeholder against the variables in scope.

Directories are searched recursively for .yaml and .yml files. Paths listed
in a .stepwiseignore file at the root of a directory are skipped.

The exit code is 1 when any file has an error, or a warning with --strict.`,
	Example: `  # Check one file
  stepwise validate flow.yaml

  # Check a directory, failing on warnings too
  stepwise validate workflows/ --strict

  # Check against a provider catalog and known secrets
  stepwise validate workflows/ --catalog providers.json --secrets secrets.yaml

  # Machine readable output for CI
  stepwise validate workflows/ --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := &lint.Runner{
			Providers: providers,
			Secrets:   secrets,
			Strict:    strict || appConfig.Strict,
			Ignore:    append(append([]string{}, appConfig.Ignore...), ignoreGlobs...),
			Workers:   workers,
			Logger:    logger.WithFields(map[string]interface{}{"command": "validate"}),
		}
		report, err := runner.Run(cmd.Context(), args)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
		} else {
			printReport(out, report)
		}

		if report.Failed() {
			return errFailed
		}
		return nil
	},
}

func printReport(out io.Writer, report *lint.Report) {
	for _, file := range report.Files {
		failed := file.Failed(report.Strict)
		if !failed && len(file.Findings) == 0 {
			if !quietSuccess {
				fmt.Fprintf(out, "%s %s %s\n", styler.SuccessIcon(), styler.Highlight(file.Path), styler.Muted(file.Fingerprint))
			}
			continue
		}

		icon := styler.WarningIcon()
		if failed {
			icon = styler.ErrorIcon()
		}
		fmt.Fprintf(out, "%s %s %s\n", icon, styler.Highlight(file.Path), styler.Muted(file.Fingerprint))
		for _, f := range file.Findings {
			fmt.Fprintf(out, "    %s %s\n", styler.Severity(f.Severity), describeFinding(f))
			if f.Hint != "" {
				fmt.Fprintf(out, "      %s\n", styler.Muted(f.Hint))
			}
		}
	}

	summary := fmt.Sprintf("%d file(s) checked, %d failed", len(report.Files), report.FailedFiles())
	if report.Failed() {
		fmt.Fprintln(out, styler.Error(summary))
	} else {
		fmt.Fprintln(out, styler.Success(summary))
	}
}

func describeFinding(f lint.Finding) string {
	switch {
	case f.Line > 0:
		return fmt.Sprintf("Line %d, column %d: %s", f.Line, f.Column, f.Message)
	case f.Step != "":
		return fmt.Sprintf("step '%s', %s: %s", f.Step, f.Path, f.Message)
	}
	return f.Message
}

func init() {
	validateCmd.Flags().BoolVar(&strict, "strict", false, "fail on warnings too")
	validateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	validateCmd.Flags().IntVar(&workers, "workers", 0, "files checked in parallel (default: number of CPUs)")
	validateCmd.Flags().StringSliceVar(&ignoreGlobs, "ignore", nil, "extra gitignore style patterns to skip")
	validateCmd.Flags().BoolVarP(&quietSuccess, "quiet", "q", false, "only print files with findings")
	rootCmd.AddCommand(validateCmd)
}
