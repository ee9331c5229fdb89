// Package scope checks that every templated reference in a workflow could
// resolve when the workflow runs. Nothing is evaluated: a reference is valid
// when the name it points at exists and is visible from the step using it.
package scope

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kris-hansen/stepwise/utils/catalog"
	"github.com/kris-hansen/stepwise/utils/workflow"
)

// Severity ranks a finding. Errors mean the workflow will misbehave at run
// time; warnings and info never block saving.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ErrStepNotFound is returned when the step to validate is not part of the
// workflow it is validated against.
var ErrStepNotFound = errors.New("step is not part of the workflow")

// Result is one finding for one expression.
type Result struct {
	Expression string   `json:"expression"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	// Hint is an optional suggestion, such as a close match for a misspelt name.
	Hint string `json:"hint,omitempty"`
}

func (r Result) String() string {
	if r.Hint != "" {
		return fmt.Sprintf("%s: %s %s", r.Severity, r.Message, r.Hint)
	}
	return fmt.Sprintf("%s: %s", r.Severity, r.Message)
}

// Options supplies the optional external context. A nil catalog or secret
// map skips the checks that need it.
type Options struct {
	Providers catalog.Catalog
	Secrets   catalog.Secrets
}

// definition is what every step of one workflow shares.
type definition struct {
	opts    Options
	order   []string
	consts  map[string]bool
	inputs  []string
	aliases map[string]bool

	// triggers is only tracked for the step tree, where alert and incident
	// references without a matching trigger produce info findings.
	triggers map[string]bool
}

// Scope is the view from one step: what it may reference.
type Scope struct {
	def *definition

	Step         string
	ProviderType string
	Vars         map[string]bool
	InForeach    bool

	// position is the index of the step in definition order.
	position int
}

func newDefinition(opts Options, consts map[string]interface{}, inputs []workflow.Input) *definition {
	d := &definition{
		opts:    opts,
		consts:  make(map[string]bool, len(consts)),
		aliases: make(map[string]bool),
	}
	for name := range consts {
		d.consts[name] = true
	}
	for _, in := range inputs {
		d.inputs = append(d.inputs, in.Name)
	}
	sort.Strings(d.inputs)
	return d
}

// ForStep returns the scope of step within wf. Steps are ordered as written,
// steps before actions, with the workflow level on-failure handler last.
func ForStep(wf *workflow.Workflow, step *workflow.Step, opts Options) (*Scope, error) {
	d := newDefinition(opts, wf.Consts, wf.Inputs)
	for alias := range wf.Aliases() {
		d.aliases[alias] = true
	}

	entries := wf.AllSteps()
	if wf.OnFailure != nil {
		entries = append(entries, wf.OnFailure)
	}
	position := -1
	for i, s := range entries {
		d.order = append(d.order, s.Name)
		if s == step {
			position = i
		}
	}
	if position < 0 {
		return nil, fmt.Errorf("%w: %q", ErrStepNotFound, step.Name)
	}

	return &Scope{
		def:          d,
		Step:         step.Name,
		ProviderType: step.Provider.Type,
		Vars:         keys(step.Vars),
		InForeach:    step.Foreach != "",
		position:     position,
	}, nil
}

// ForNode returns the scope of the task with the given id in the step tree.
// Ordering follows the depth first flattening of the tree.
func ForNode(def *workflow.Definition, nodeID string, opts Options) (*Scope, error) {
	d := newDefinition(opts, def.Properties.Consts, def.Properties.Inputs)
	for _, alias := range def.Aliases() {
		d.aliases[alias] = true
	}
	d.triggers = make(map[string]bool)
	for _, t := range def.Triggers {
		d.triggers[t.Type] = true
	}

	var scope *Scope
	for i, task := range workflow.Tasks(def) {
		d.order = append(d.order, task.Name)
		// Ids should be unique; if they are not, the first task wins.
		if task.ID != nodeID || scope != nil {
			continue
		}
		visit, _ := workflow.Find(def, nodeID)
		scope = &Scope{
			def:          d,
			Step:         task.Name,
			ProviderType: task.Properties.ProviderType,
			Vars:         keys(task.Properties.Vars),
			InForeach:    visit.InForeach,
			position:     i,
		}
	}
	if scope == nil {
		return nil, fmt.Errorf("%w: node %q", ErrStepNotFound, nodeID)
	}
	return scope, nil
}

func keys(m map[string]interface{}) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

// indexOf returns the first position of a step name, -1 when absent.
func (d *definition) indexOf(name string) int {
	for i, n := range d.order {
		if n == name {
			return i
		}
	}
	return -1
}
