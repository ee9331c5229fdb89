// Package formatter reorders workflow definitions into canonical field order
// while keeping comments, quoting and block scalars exactly as written.
package formatter

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kris-hansen/stepwise/utils/workflow"
)

// Canonical field orders. Fields not listed keep their relative order after
// the listed ones.
var (
	WorkflowOrder = []string{
		"id", "name", "description", "disabled", "triggers", "inputs",
		"consts", "owners", "services", "steps", "actions", "on-failure",
	}
	StepOrder     = []string{"id", "name", "if", "foreach", "vars", "condition", "provider", "on-failure"}
	ProviderOrder = []string{"type", "config", "with"}
)

// Options selects how deep formatting goes.
type Options struct {
	// Steps also orders every step and action map and its provider map.
	Steps bool
}

// Format returns text with the workflow fields in canonical order.
func Format(text string, opts Options) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return "", fmt.Errorf("%w: %w", workflow.ErrMalformed, err)
	}
	body, _ := workflow.Body(&root)
	if body == nil {
		return "", workflow.ErrEmptyDocument
	}
	if body.Kind != yaml.MappingNode {
		return "", fmt.Errorf("%w: line %d: expected a mapping for the workflow", workflow.ErrMalformed, body.Line)
	}

	Reorder(body, WorkflowOrder)
	if opts.Steps {
		for _, key := range []string{"steps", "actions"} {
			list := Value(body, key)
			if list == nil || list.Kind != yaml.SequenceNode {
				continue
			}
			for _, step := range list.Content {
				reorderStep(step)
			}
		}
		if onFailure := Value(body, "on-failure"); onFailure != nil {
			reorderStep(onFailure)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return "", fmt.Errorf("failed to encode workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode workflow: %w", err)
	}
	return buf.String(), nil
}

func reorderStep(step *yaml.Node) {
	if step.Kind != yaml.MappingNode {
		return
	}
	Reorder(step, StepOrder)
	if provider := Value(step, "provider"); provider != nil && provider.Kind == yaml.MappingNode {
		Reorder(provider, ProviderOrder)
	}
}

// Reorder sorts the key/value pairs of a mapping node by order. The sort is
// stable, so applying it twice changes nothing.
func Reorder(mapping *yaml.Node, order []string) {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return
	}
	rank := make(map[string]int, len(order))
	for i, key := range order {
		rank[key] = i
	}
	rankOf := func(key string) int {
		if r, ok := rank[key]; ok {
			return r
		}
		return len(order)
	}

	type pair struct{ key, value *yaml.Node }
	pairs := make([]pair, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		pairs = append(pairs, pair{mapping.Content[i], mapping.Content[i+1]})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return rankOf(pairs[i].key.Value) < rankOf(pairs[j].key.Value)
	})

	content := make([]*yaml.Node, 0, len(mapping.Content))
	for _, p := range pairs {
		content = append(content, p.key, p.value)
	}
	mapping.Content = content
}

// Value returns the value node stored under key in a mapping node.
func Value(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
