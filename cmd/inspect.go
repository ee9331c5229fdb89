package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/stepwise/utils/formatter"
	"github.com/kris-hansen/stepwise/utils/mustache"
	"github.com/kris-hansen/stepwise/utils/workflow"
)

var irTree bool

var depsCmd = &cobra.Command{
	Use:   "deps <workflow.yaml>",
	Short: "List the providers, secrets, inputs and event fields a workflow uses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(cmd, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), mustache.ExtractDependencies(text))
	},
}

var irCmd = &cobra.Command{
	Use:   "ir <workflow.yaml>",
	Short: "Print the step tree of a workflow",
	Long: `Parse a workflow into the step tree used by visual editors and print it as
JSON, or as an indented tree with --tree.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(cmd, args[0])
		if err != nil {
			return err
		}
		def, err := workflow.Parse(text, workflow.Options{Catalog: providers})
		if err != nil {
			return err
		}
		if irTree {
			printTree(cmd.OutOrStdout(), def)
			return nil
		}
		return writeJSON(cmd.OutOrStdout(), def)
	},
}

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip <workflow.yaml>",
	Short: "Parse a workflow into the step tree and write it back as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(cmd, args[0])
		if err != nil {
			return err
		}
		def, err := workflow.Parse(text, workflow.Options{Catalog: providers})
		if err != nil {
			return err
		}
		out, err := workflow.Serialize(def)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var pathCmd = &cobra.Command{
	Use:   "path <workflow.yaml> <offset>",
	Short: "Print the path of the node at a character offset",
	Example: `  stepwise path flow.yaml 120
  workflow.steps[0].provider.type`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(cmd, args[0])
		if err != nil {
			return err
		}
		offset, err := strconv.Atoi(args[1])
		if err != nil || offset < 0 {
			return fmt.Errorf("invalid offset %q", args[1])
		}
		path := formatter.PathAt(text, offset)
		if len(path) == 0 {
			return fmt.Errorf("no node at offset %d", offset)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path.String())
		return nil
	},
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func printTree(out io.Writer, def *workflow.Definition) {
	fmt.Fprintln(out, styler.Bold(def.Properties.Name))
	for i, t := range def.Triggers {
		last := i == len(def.Triggers)-1 && len(def.Sequence) == 0 && def.Properties.OnFailure == nil
		fmt.Fprintf(out, "%s%s %s\n", styler.TreeBranch(last), styler.Muted("trigger"), t.Type)
	}
	nodes := append([]workflow.Node{}, def.Sequence...)
	if def.Properties.OnFailure != nil {
		nodes = append(nodes, def.Properties.OnFailure)
	}
	printNodes(out, nodes, "", "")
}

func printNodes(out io.Writer, nodes []workflow.Node, prefix, label string) {
	for i, n := range nodes {
		last := i == len(nodes)-1
		fmt.Fprintf(out, "%s%s%s%s\n", prefix, styler.TreeBranch(last), label, nodeLabel(n))
		child := prefix + styler.TreePipe(last)
		switch c := n.(type) {
		case *workflow.Switch:
			printNodes(out, c.Branches.True, child, "")
			printNodes(out, c.Branches.False, child, styler.Muted("else "))
		case *workflow.Foreach:
			printNodes(out, c.Sequence, child, "")
		}
	}
}

func nodeLabel(n workflow.Node) string {
	switch c := n.(type) {
	case *workflow.Task:
		return fmt.Sprintf("%s %s %s", styler.Muted(string(c.Kind)), styler.Highlight(c.Name), styler.Muted("("+c.Properties.ProviderType+")"))
	case *workflow.Switch:
		desc := workflow.Text(c.Properties.Assert)
		if c.Kind == workflow.SwitchThreshold {
			desc = fmt.Sprintf("value=%v compare_to=%v", c.Properties.Value, c.Properties.CompareTo)
		}
		return fmt.Sprintf("%s %s %s", styler.Muted(string(c.Kind)), styler.Highlight(c.Name), styler.Muted(desc))
	case *workflow.Foreach:
		return fmt.Sprintf("%s %s", styler.Muted("foreach"), c.Value)
	}
	return n.NodeName()
}

func init() {
	irCmd.Flags().BoolVar(&irTree, "tree", false, "print an indented tree instead of JSON")
	rootCmd.AddCommand(depsCmd, irCmd, roundtripCmd, pathCmd)
}
