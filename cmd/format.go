package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/stepwise/utils/fileutil"
	"github.com/kris-hansen/stepwise/utils/formatter"
	"github.com/kris-hansen/stepwise/utils/logger"
)

var (
	formatSteps bool
	formatWrite bool
	formatCheck bool
)

var formatCmd = &cobra.Command{
	Use:   "format <workflow.yaml>",
	Short: "Normalize key order while keeping comments and quoting",
	Long: `Rewrite a workflow with its top-level keys in canonical order. With --steps,
the keys of every step and action are ordered too. Comments, quoting styles
and block scalars are kept as written.

Use - to read from STDIN.`,
	Example: `  # Print the formatted workflow
  stepwise format flow.yaml

  # Format in place, including step keys
  stepwise format flow.yaml --steps --write

  # Fail when a file is not formatted
  stepwise format flow.yaml --check`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(cmd, args[0])
		if err != nil {
			return err
		}
		formatted, err := formatter.Format(text, formatter.Options{Steps: formatSteps})
		if err != nil {
			return err
		}

		switch {
		case formatCheck:
			if formatted != text {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s is not formatted\n", styler.ErrorIcon(), styler.Highlight(args[0]))
				return errFailed
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styler.SuccessIcon(), styler.Highlight(args[0]))
		case formatWrite && args[0] != "-":
			path, err := fileutil.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if formatted == text {
				logger.Logger.Debugw("already formatted", "file", path)
				return nil
			}
			if err := os.WriteFile(path, []byte(formatted), 0644); err != nil {
				return fmt.Errorf("failed to write '%s': %w", path, err)
			}
			logger.Logger.Infow("formatted workflow", "file", path)
		default:
			fmt.Fprint(cmd.OutOrStdout(), formatted)
		}
		return nil
	},
}

// readSource reads a workflow file, or STDIN for "-".
func readSource(cmd *cobra.Command, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("error reading from STDIN: %w", err)
		}
		return string(data), nil
	}
	path, err := fileutil.ExpandPath(arg)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read workflow: %w", err)
	}
	return string(data), nil
}

func init() {
	formatCmd.Flags().BoolVar(&formatSteps, "steps", false, "also order the keys of every step and action")
	formatCmd.Flags().BoolVarP(&formatWrite, "write", "w", false, "write the result back to the file")
	formatCmd.Flags().BoolVar(&formatCheck, "check", false, "exit with 1 when the file is not formatted")
	rootCmd.AddCommand(formatCmd)
}
