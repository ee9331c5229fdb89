package scope

import (
	"fmt"
	"sort"

	"github.com/kris-hansen/stepwise/utils/workflow"
)

// Diagnostic ties a finding to the step and field it was found in.
type Diagnostic struct {
	Step  string `json:"step"`
	Field string `json:"field"`
	Result
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s (%s): %s", d.Step, d.Field, d.Result)
}

// field is one templated string and where it lives.
type field struct {
	path  string
	value string
}

// ValidateWorkflow checks every templated field of every step, action and the
// workflow level on-failure handler.
func ValidateWorkflow(wf *workflow.Workflow, opts Options) []Diagnostic {
	entries := wf.AllSteps()
	if wf.OnFailure != nil {
		entries = append(entries, wf.OnFailure)
	}

	var diags []Diagnostic
	for _, step := range entries {
		s, err := ForStep(wf, step, opts)
		if err != nil {
			continue
		}
		for _, f := range stepFields(step) {
			for _, r := range s.ValidateString(f.value) {
				diags = append(diags, Diagnostic{Step: step.Name, Field: f.path, Result: r})
			}
		}
	}
	return diags
}

// ValidateDefinition is ValidateWorkflow for the step tree. Condition fields
// are checked from the first task their switch guards.
func ValidateDefinition(def *workflow.Definition, opts Options) []Diagnostic {
	var diags []Diagnostic
	workflow.Walk(def, func(v workflow.Visit) bool {
		switch n := v.Node.(type) {
		case *workflow.Task:
			s, err := ForNode(def, n.ID, opts)
			if err != nil {
				return true
			}
			for _, f := range taskFields(n) {
				for _, r := range s.ValidateString(f.value) {
					diags = append(diags, Diagnostic{Step: n.Name, Field: f.path, Result: r})
				}
			}
		case *workflow.Switch:
			guarded := firstTask(n)
			if guarded == nil {
				return true
			}
			s, err := ForNode(def, guarded.ID, opts)
			if err != nil {
				return true
			}
			for _, f := range switchFields(n) {
				for _, r := range s.ValidateString(f.value) {
					diags = append(diags, Diagnostic{Step: guarded.Name, Field: f.path, Result: r})
				}
			}
		case *workflow.Foreach:
			guarded := firstTask(n)
			if guarded == nil {
				return true
			}
			s, err := ForNode(def, guarded.ID, opts)
			if err != nil {
				return true
			}
			for _, r := range s.ValidateString(n.Value) {
				diags = append(diags, Diagnostic{Step: guarded.Name, Field: "foreach", Result: r})
			}
		}
		return true
	})
	return diags
}

func firstTask(n workflow.Node) *workflow.Task {
	switch c := n.(type) {
	case *workflow.Task:
		return c
	case *workflow.Switch:
		for _, child := range append(append([]workflow.Node(nil), c.Branches.True...), c.Branches.False...) {
			if t := firstTask(child); t != nil {
				return t
			}
		}
	case *workflow.Foreach:
		for _, child := range c.Sequence {
			if t := firstTask(child); t != nil {
				return t
			}
		}
	}
	return nil
}

func stepFields(s *workflow.Step) []field {
	var fields []field
	add := func(path, value string) {
		if value != "" {
			fields = append(fields, field{path, value})
		}
	}
	add("if", s.If)
	add("foreach", s.Foreach)
	for _, name := range sortedKeys(s.Vars) {
		add("vars."+name, workflow.Text(s.Vars[name]))
	}
	for i, c := range s.Condition {
		prefix := fmt.Sprintf("condition[%d].", i)
		add(prefix+"value", workflow.Text(c.Value))
		add(prefix+"compare_to", workflow.Text(c.CompareTo))
		add(prefix+"assert", workflow.Text(c.Assert))
	}
	add("provider.config", s.Provider.Config)
	fields = append(fields, nested("provider.with", s.Provider.With)...)
	return fields
}

func taskFields(t *workflow.Task) []field {
	var fields []field
	p := t.Properties
	if p.If != "" {
		fields = append(fields, field{"if", p.If})
	}
	for _, name := range sortedKeys(p.Vars) {
		if v := workflow.Text(p.Vars[name]); v != "" {
			fields = append(fields, field{"vars." + name, v})
		}
	}
	if p.Config != "" {
		fields = append(fields, field{"provider.config", p.Config})
	}
	for _, key := range p.With.Keys() {
		v, _ := p.With.Get(key)
		fields = append(fields, nested("provider.with."+key, v)...)
	}
	return fields
}

func switchFields(sw *workflow.Switch) []field {
	var fields []field
	for path, value := range map[string]string{
		"condition.value":      workflow.Text(sw.Properties.Value),
		"condition.compare_to": workflow.Text(sw.Properties.CompareTo),
		"condition.assert":     workflow.Text(sw.Properties.Assert),
	} {
		if value != "" {
			fields = append(fields, field{path, value})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].path < fields[j].path })
	return fields
}

// nested collects every string under v, descending into maps and lists.
func nested(path string, v interface{}) []field {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []field{{path, val}}
	case map[string]interface{}:
		var fields []field
		for _, k := range sortedKeys(val) {
			fields = append(fields, nested(path+"."+k, val[k])...)
		}
		return fields
	case []interface{}:
		var fields []field
		for i, item := range val {
			fields = append(fields, nested(fmt.Sprintf("%s[%d]", path, i), item)...)
		}
		return fields
	}
	return nil
}
