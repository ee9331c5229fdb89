package workflow

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Errors returned while reading or converting definitions.
var (
	ErrMalformed                = errors.New("malformed workflow definition")
	ErrEmptyDocument            = errors.New("workflow definition is empty")
	ErrConditionWithUnmatchedIf = errors.New("'if' does not reference a known condition alias and cannot be combined with 'condition' without 'foreach'")
	ErrUnknownConditionType     = errors.New("unknown condition type")
	ErrFalseBranch              = errors.New("false branch of a condition cannot be expressed in the textual form")
	ErrNestedForeach            = errors.New("nested foreach cannot be expressed in the textual form")
	ErrEmptyBranch              = errors.New("condition without steps cannot be expressed in the textual form")
	ErrAliasOrder               = errors.New("a step cannot share a condition declared on an action")
	ErrUnexpectedNode           = errors.New("unexpected node in step sequence")
)

// Load decodes a definition. The workflow may sit under a top-level
// "workflow" key or be the document root itself. Syntax errors wrap
// ErrMalformed and keep the yaml.v3 error, which carries the line.
func Load(text string) (*Workflow, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	body, _ := Body(&root)
	if body == nil {
		return nil, ErrEmptyDocument
	}
	if body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: expected a mapping for the workflow", ErrMalformed, body.Line)
	}

	var wf Workflow
	if err := body.Decode(&wf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &wf, nil
}

// Body returns the node holding the workflow fields. wrapped is true when
// the document uses the "workflow:" key.
func Body(root *yaml.Node) (body *yaml.Node, wrapped bool) {
	node := root
	if node == nil || node.Kind == 0 {
		return nil, false
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, false
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return node, false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "workflow" && node.Content[i+1].Kind == yaml.MappingNode {
			return node.Content[i+1], true
		}
	}
	return node, false
}

// Marshal renders wf under the "workflow" key with two-space indentation.
func Marshal(wf *Workflow) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Document{Workflow: wf}); err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}
	return buf.Bytes(), nil
}
