package workflow

import (
	"fmt"

	"github.com/kris-hansen/stepwise/utils/catalog"
	"github.com/kris-hansen/stepwise/utils/mustache"
)

// codeParam is the with key that always stays a literal string.
const codeParam = "code"

// Options tunes the conversions. The zero value is ready to use.
type Options struct {
	// Catalog, when set, splits with parameters into declared and extra ones.
	// Unknown provider types are tolerated either way.
	Catalog catalog.Catalog

	// NewID overrides id generation, mainly for tests.
	NewID func() string
}

// Parse reads definition text into the step tree.
func Parse(text string, opts Options) (*Definition, error) {
	wf, err := Load(text)
	if err != nil {
		return nil, err
	}
	return FromWorkflow(wf, opts)
}

// builder carries the state of one forward conversion.
type builder struct {
	opts    Options
	aliases map[string]*Switch
}

// FromWorkflow converts a decoded definition into the step tree. Steps and
// actions form one worklist, steps first. An entry whose "if" names the
// alias of an earlier condition joins that condition's true branch instead
// of the top-level sequence.
func FromWorkflow(wf *Workflow, opts Options) (*Definition, error) {
	b := &builder{opts: opts, aliases: make(map[string]*Switch)}

	def := &Definition{
		Properties: Properties{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			Disabled:    wf.Disabled,
			Consts:      wf.Consts,
			Owners:      wf.Owners,
			Services:    wf.Services,
			Inputs:      wf.Inputs,
			Extra:       wf.Extra,
		},
		Triggers: b.triggers(wf.Triggers),
		Sequence: []Node{},
	}

	for _, s := range wf.Steps {
		node, err := b.entry(s, KindStep)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, err)
		}
		if node != nil {
			def.Sequence = append(def.Sequence, node)
		}
	}
	for _, a := range wf.Actions {
		node, err := b.entry(a, KindAction)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", a.Name, err)
		}
		if node != nil {
			def.Sequence = append(def.Sequence, node)
		}
	}

	if wf.OnFailure != nil {
		def.Properties.OnFailure = b.task(wf.OnFailure, KindAction)
	}
	return def, nil
}

func (b *builder) newID() string {
	if b.opts.NewID != nil {
		return b.opts.NewID()
	}
	return NewID()
}

// entry converts one step or action. A nil node means the entry was
// attached to an existing condition.
func (b *builder) entry(s *Step, kind TaskKind) (Node, error) {
	task := b.task(s, kind)

	if s.If != "" {
		if sw, ok := b.aliases[mustache.Clean(s.If)]; ok {
			// The alias reference is carried by the tree position.
			task.Properties.If = ""
			child, err := b.wrap(s, task)
			if err != nil {
				return nil, err
			}
			sw.Branches.True = append(sw.Branches.True, child)
			return nil, nil
		}
		if len(s.Condition) > 0 && s.Foreach == "" {
			return nil, ErrConditionWithUnmatchedIf
		}
	}
	return b.wrap(s, task)
}

// wrap puts a task inside its condition switches and foreach, innermost
// first.
func (b *builder) wrap(s *Step, task *Task) (Node, error) {
	var node Node = task
	if len(s.Condition) > 0 {
		sw, err := b.switches(s.Condition, task)
		if err != nil {
			return nil, err
		}
		node = sw
	}
	if s.Foreach != "" {
		node = &Foreach{
			ID:       b.newID(),
			Name:     "foreach",
			Value:    s.Foreach,
			Sequence: []Node{node},
		}
	}
	return node, nil
}

// switches builds one switch per condition. Several conditions on one entry
// must all hold, so they nest: the first condition is the outermost switch
// and the task sits in the true branch of the last one.
func (b *builder) switches(conds []Condition, task *Task) (*Switch, error) {
	var inner Node = task
	built := make([]*Switch, len(conds))
	for i := len(conds) - 1; i >= 0; i-- {
		c := conds[i]
		var kind SwitchKind
		switch c.Type {
		case ConditionThreshold:
			kind = SwitchThreshold
		case ConditionAssert:
			kind = SwitchAssert
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownConditionType, c.Type)
		}
		name := c.Name
		if name == "" {
			name = c.Type
		}
		sw := &Switch{
			ID:   b.newID(),
			Name: name,
			Kind: kind,
			Properties: SwitchProperties{
				Value:     c.Value,
				CompareTo: c.CompareTo,
				Assert:    c.Assert,
				Alias:     c.Alias,
			},
			Branches: Branches{True: []Node{inner}, False: []Node{}},
		}
		built[i] = sw
		inner = sw
	}
	// Aliases become visible to later entries only.
	for _, sw := range built {
		if sw.Properties.Alias != "" {
			b.aliases[sw.Properties.Alias] = sw
		}
	}
	return built[0], nil
}

func (b *builder) task(s *Step, kind TaskKind) *Task {
	id, explicit := s.ID, s.ID != ""
	if !explicit {
		id = b.newID()
	}
	return &Task{
		ID:         id,
		ExplicitID: explicit,
		Name:       s.Name,
		Kind:       kind,
		Properties: TaskProperties{
			ProviderType: s.Provider.Type,
			Config:       s.Provider.Config,
			With:         b.with(s.Provider.Type, kind, s.Provider.With),
			If:           s.If,
			Vars:         s.Vars,
			OnFailure:    s.OnFailure,
			Extra:        s.Extra,
		},
	}
}

// with sorts raw parameters into the With sum type.
func (b *builder) with(providerType string, kind TaskKind, raw map[string]interface{}) With {
	declared := make(map[string]bool)
	for _, p := range b.opts.Catalog.Params(providerType, kind == KindAction) {
		declared[p] = true
	}

	var w With
	for key, value := range raw {
		switch {
		case key == codeParam:
			code := Text(value)
			w.Code = &code
		case declared[key]:
			if w.Params == nil {
				w.Params = make(map[string]interface{})
			}
			w.Params[key] = value
		default:
			if w.Extra == nil {
				w.Extra = make(map[string]interface{})
			}
			w.Extra[key] = value
		}
	}
	return w
}

func (b *builder) triggers(triggers []Trigger) []*TriggerNode {
	nodes := make([]*TriggerNode, 0, len(triggers))
	for _, t := range triggers {
		node := &TriggerNode{ID: b.newID(), Type: t.Type}
		switch t.Type {
		case TriggerManual:
		case TriggerAlert:
			node.Alert = &AlertTrigger{Filters: t.Filters, CEL: t.CEL, OnlyOnChange: t.OnlyOnChange}
		case TriggerIncident:
			node.Incident = &IncidentTrigger{Events: t.Events}
		default:
			if t.Value != nil {
				node.Value = Text(t.Value)
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}
