// Package workflow holds the textual workflow definition, the step tree (IR)
// used by the visual editor, and the conversions between the two.
package workflow

import "fmt"

// Document is the persisted layout: a single top-level "workflow" key.
type Document struct {
	Workflow *Workflow `yaml:"workflow"`
}

// Workflow is the textual definition as written by users.
type Workflow struct {
	ID          string                 `yaml:"id,omitempty"`
	Name        string                 `yaml:"name,omitempty"`
	Description string                 `yaml:"description,omitempty"`
	Disabled    bool                   `yaml:"disabled,omitempty"`
	Triggers    []Trigger              `yaml:"triggers,omitempty"`
	Inputs      []Input                `yaml:"inputs,omitempty"`
	Consts      map[string]interface{} `yaml:"consts,omitempty"`
	Owners      []string               `yaml:"owners,omitempty"`
	Services    []string               `yaml:"services,omitempty"`
	Steps       []*Step                `yaml:"steps,omitempty"`
	Actions     []*Step                `yaml:"actions,omitempty"`
	OnFailure   *Step                  `yaml:"on-failure,omitempty"`

	// Extra keeps unrecognised top-level fields so they survive a round trip.
	Extra map[string]interface{} `yaml:",inline"`
}

// Trigger starts a workflow. Which fields apply depends on Type.
type Trigger struct {
	Type string `yaml:"type"`

	// interval
	Value interface{} `yaml:"value,omitempty"`

	// alert
	Filters      []Filter `yaml:"filters,omitempty"`
	CEL          string   `yaml:"cel,omitempty"`
	OnlyOnChange []string `yaml:"only_on_change,omitempty"`

	// incident
	Events []string `yaml:"events,omitempty"`
}

// Filter is a key/value match on an alert trigger.
type Filter struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Input is a parameter supplied when the workflow is run manually.
type Input struct {
	Name        string      `yaml:"name" json:"name"`
	Type        string      `yaml:"type" json:"type"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Options     []string    `yaml:"options,omitempty" json:"options,omitempty"`
}

// Step is one entry of the steps or actions list.
type Step struct {
	ID        string                 `yaml:"id,omitempty"`
	Name      string                 `yaml:"name,omitempty"`
	If        string                 `yaml:"if,omitempty"`
	Foreach   string                 `yaml:"foreach,omitempty"`
	Vars      map[string]interface{} `yaml:"vars,omitempty"`
	Condition []Condition            `yaml:"condition,omitempty"`
	Provider  Provider               `yaml:"provider"`
	OnFailure map[string]interface{} `yaml:"on-failure,omitempty"`

	Extra map[string]interface{} `yaml:",inline"`
}

// Provider selects the integration a step runs against.
type Provider struct {
	Type   string                 `yaml:"type"`
	Config string                 `yaml:"config,omitempty"`
	With   map[string]interface{} `yaml:"with,omitempty"`
}

// Condition is a guard on a step. Threshold conditions compare Value with
// CompareTo; assert conditions evaluate Assert. The operands keep the scalar
// type they were written with, so compare_to: 70 stays a number.
type Condition struct {
	Name      string      `yaml:"name,omitempty"`
	Type      string      `yaml:"type"`
	Value     interface{} `yaml:"value,omitempty"`
	CompareTo interface{} `yaml:"compare_to,omitempty"`
	Assert    interface{} `yaml:"assert,omitempty"`
	Alias     string      `yaml:"alias,omitempty"`
}

// Text renders a scalar field for readers that only need its text: nil is
// empty, strings are returned as they are, anything else is formatted.
func Text(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	}
	return fmt.Sprint(v)
}

// Condition types.
const (
	ConditionThreshold = "threshold"
	ConditionAssert    = "assert"
)

// Trigger types.
const (
	TriggerManual   = "manual"
	TriggerInterval = "interval"
	TriggerAlert    = "alert"
	TriggerIncident = "incident"
)

// AllSteps returns steps followed by actions, the order every consumer walks
// the definition in.
func (w *Workflow) AllSteps() []*Step {
	all := make([]*Step, 0, len(w.Steps)+len(w.Actions))
	all = append(all, w.Steps...)
	all = append(all, w.Actions...)
	return all
}

// IsAction reports whether s is listed under actions (or is the workflow
// level on-failure handler, which is action-shaped).
func (w *Workflow) IsAction(s *Step) bool {
	if s != nil && s == w.OnFailure {
		return true
	}
	for _, a := range w.Actions {
		if a == s {
			return true
		}
	}
	return false
}

// Aliases returns every condition alias declared in the workflow.
func (w *Workflow) Aliases() map[string]bool {
	aliases := make(map[string]bool)
	for _, s := range w.AllSteps() {
		for _, c := range s.Condition {
			if c.Alias != "" {
				aliases[c.Alias] = true
			}
		}
	}
	return aliases
}
