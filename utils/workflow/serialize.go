package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kris-hansen/stepwise/utils/mustache"
)

// Serialize converts the step tree back into definition text.
func Serialize(def *Definition) (string, error) {
	wf, err := ToWorkflow(def)
	if err != nil {
		return "", err
	}
	out, err := Marshal(wf)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// emitContext is what enclosing containers contribute to each emitted entry.
type emitContext struct {
	foreach    string
	conditions []Condition
	ifExpr     string
}

type serializer struct {
	wf    *Workflow
	taken map[string]bool
}

// ToWorkflow converts the step tree into the textual model. A switch with
// several true-branch children becomes several entries: the first carries
// the condition block, every later one refers to it with if: "{{ alias }}".
// An alias is assigned when the switch has none and more than one child
// shares it.
func ToWorkflow(def *Definition) (*Workflow, error) {
	s := &serializer{taken: make(map[string]bool)}
	for _, alias := range def.Aliases() {
		s.taken[alias] = true
	}

	p := def.Properties
	s.wf = &Workflow{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Disabled:    p.Disabled,
		Triggers:    triggersToText(def.Triggers),
		Inputs:      p.Inputs,
		Consts:      p.Consts,
		Owners:      p.Owners,
		Services:    p.Services,
		Extra:       p.Extra,
	}

	for _, n := range def.Sequence {
		if err := s.emit(n, emitContext{}); err != nil {
			return nil, err
		}
	}
	if p.OnFailure != nil {
		s.wf.OnFailure = stepFromTask(p.OnFailure)
	}
	return s.wf, nil
}

func (s *serializer) emit(n Node, ctx emitContext) error {
	switch node := n.(type) {
	case *Task:
		step := stepFromTask(node)
		if ctx.foreach != "" {
			step.Foreach = ctx.foreach
		}
		if len(ctx.conditions) > 0 {
			step.Condition = append([]Condition(nil), ctx.conditions...)
		}
		if ctx.ifExpr != "" {
			step.If = ctx.ifExpr
		}
		if node.Kind == KindAction {
			s.wf.Actions = append(s.wf.Actions, step)
		} else {
			s.wf.Steps = append(s.wf.Steps, step)
		}
		return nil

	case *Foreach:
		if ctx.foreach != "" {
			return fmt.Errorf("foreach %q: %w", node.Name, ErrNestedForeach)
		}
		inner := ctx
		inner.foreach = node.Value
		for _, child := range node.Sequence {
			if err := s.emit(child, inner); err != nil {
				return err
			}
		}
		return nil

	case *Switch:
		if len(node.Branches.False) > 0 {
			return fmt.Errorf("condition %q: %w", node.Name, ErrFalseBranch)
		}
		if len(node.Branches.True) == 0 {
			return fmt.Errorf("condition %q: %w", node.Name, ErrEmptyBranch)
		}
		if err := checkAliasOrder(node); err != nil {
			return err
		}
		cond := conditionFromSwitch(node)
		if cond.Alias == "" && len(node.Branches.True) > 1 {
			cond.Alias = s.autoAlias(node.Name)
		}
		for i, child := range node.Branches.True {
			inner := emitContext{foreach: ctx.foreach}
			if i == 0 {
				inner.conditions = append(append([]Condition(nil), ctx.conditions...), cond)
				inner.ifExpr = ctx.ifExpr
			} else {
				inner.ifExpr = mustache.Wrap(cond.Alias)
			}
			if err := s.emit(child, inner); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s %q", ErrUnexpectedNode, n.NodeType(), n.NodeName())
}

// checkAliasOrder rejects a shared switch whose condition would be written on
// an action while a later child lands in steps. Steps are read before
// actions, so that child could not find the alias again.
func checkAliasOrder(sw *Switch) error {
	holder := tasksUnder(sw.Branches.True[0])
	if len(holder) == 0 || holder[0].Kind != KindAction {
		return nil
	}
	for _, child := range sw.Branches.True[1:] {
		for _, t := range tasksUnder(child) {
			if t.Kind != KindAction {
				return fmt.Errorf("condition %q, step %q: %w", sw.Name, t.Name, ErrAliasOrder)
			}
		}
	}
	return nil
}

// tasksUnder lists the tasks below n in the order they are emitted.
func tasksUnder(n Node) []*Task {
	switch c := n.(type) {
	case *Task:
		return []*Task{c}
	case *Switch:
		var tasks []*Task
		for _, child := range c.Branches.True {
			tasks = append(tasks, tasksUnder(child)...)
		}
		return tasks
	case *Foreach:
		var tasks []*Task
		for _, child := range c.Sequence {
			tasks = append(tasks, tasksUnder(child)...)
		}
		return tasks
	}
	return nil
}

var aliasUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// autoAlias derives a unique alias from a switch name.
func (s *serializer) autoAlias(name string) string {
	base := strings.Trim(aliasUnsafe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if base == "" {
		base = "condition"
	}
	alias := base
	for n := 2; s.taken[alias]; n++ {
		alias = base + "_" + strconv.Itoa(n)
	}
	s.taken[alias] = true
	return alias
}

func conditionFromSwitch(sw *Switch) Condition {
	return Condition{
		Name:      sw.Name,
		Type:      string(sw.Kind),
		Value:     sw.Properties.Value,
		CompareTo: sw.Properties.CompareTo,
		Assert:    sw.Properties.Assert,
		Alias:     sw.Properties.Alias,
	}
}

func stepFromTask(t *Task) *Step {
	step := &Step{
		Name:      t.Name,
		If:        t.Properties.If,
		Vars:      t.Properties.Vars,
		OnFailure: t.Properties.OnFailure,
		Extra:     t.Properties.Extra,
		Provider: Provider{
			Type:   t.Properties.ProviderType,
			Config: t.Properties.Config,
			With:   withToText(t.Properties.With),
		},
	}
	if t.ExplicitID {
		step.ID = t.ID
	}
	return step
}

// withToText merges the with parameters back into one map. String values
// holding a JSON object or array become native values again; code is always
// kept as written. Scalar strings such as "5" or "true" stay strings on
// purpose, otherwise a quoted value written by the user would change type.
func withToText(w With) map[string]interface{} {
	if w.Len() == 0 {
		return nil
	}
	out := make(map[string]interface{}, w.Len())
	for k, v := range w.Params {
		out[k] = coerceJSON(v)
	}
	for k, v := range w.Extra {
		out[k] = coerceJSON(v)
	}
	if w.Code != nil {
		out[codeParam] = *w.Code
	}
	return out
}

func coerceJSON(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return v
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return v
	}
	return parsed
}

func triggersToText(nodes []*TriggerNode) []Trigger {
	if len(nodes) == 0 {
		return nil
	}
	triggers := make([]Trigger, 0, len(nodes))
	for _, n := range nodes {
		t := Trigger{Type: n.Type}
		switch n.Type {
		case TriggerManual:
		case TriggerAlert:
			if n.Alert != nil {
				t.Filters = n.Alert.Filters
				t.CEL = n.Alert.CEL
				t.OnlyOnChange = n.Alert.OnlyOnChange
			}
		case TriggerIncident:
			if n.Incident != nil {
				t.Events = n.Incident.Events
			}
		default:
			if n.Value != "" {
				if i, err := strconv.Atoi(n.Value); err == nil {
					t.Value = i
				} else {
					t.Value = n.Value
				}
			}
		}
		triggers = append(triggers, t)
	}
	return triggers
}
