package workflow

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// NodeType tags the variants of the step tree.
type NodeType string

const (
	NodeTrigger NodeType = "trigger"
	NodeTask    NodeType = "task"
	NodeSwitch  NodeType = "switch"
	NodeForeach NodeType = "foreach"
)

// Node is one element of the step tree. The set of implementations is
// closed: *TriggerNode, *Task, *Switch and *Foreach. Containers own their
// children, so the tree never has shared or back references.
type Node interface {
	NodeID() string
	NodeName() string
	NodeType() NodeType
	node()
}

// TaskKind says whether a task came from steps or actions.
type TaskKind string

const (
	KindStep   TaskKind = "step"
	KindAction TaskKind = "action"
)

// SwitchKind mirrors the condition type.
type SwitchKind string

const (
	SwitchThreshold SwitchKind = ConditionThreshold
	SwitchAssert    SwitchKind = ConditionAssert
)

// NewID returns a fresh node identifier.
func NewID() string {
	return uuid.NewString()
}

// Definition is the editable form of a workflow.
type Definition struct {
	Properties Properties     `json:"properties"`
	Triggers   []*TriggerNode `json:"triggers"`
	Sequence   []Node         `json:"sequence"`
}

// Properties holds the workflow-level fields.
type Properties struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Disabled    bool                   `json:"disabled"`
	Consts      map[string]interface{} `json:"consts,omitempty"`
	Owners      []string               `json:"owners,omitempty"`
	Services    []string               `json:"services,omitempty"`
	Inputs      []Input                `json:"inputs,omitempty"`
	OnFailure   *Task                  `json:"on_failure,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// TriggerNode is a workflow trigger. Exactly the fields matching Type are set.
type TriggerNode struct {
	ID       string           `json:"id"`
	Type     string           `json:"trigger"`
	Value    string           `json:"value,omitempty"`
	Alert    *AlertTrigger    `json:"alert,omitempty"`
	Incident *IncidentTrigger `json:"incident,omitempty"`
}

// AlertTrigger fires on matching alerts.
type AlertTrigger struct {
	Filters      []Filter `json:"filters,omitempty"`
	CEL          string   `json:"cel,omitempty"`
	OnlyOnChange []string `json:"only_on_change,omitempty"`
}

// IncidentTrigger fires on incident lifecycle events.
type IncidentTrigger struct {
	Events []string `json:"events"`
}

// Task runs one provider call.
type Task struct {
	ID string `json:"id"`
	// ExplicitID is set when the id came from the source text; only those ids
	// are written back.
	ExplicitID bool           `json:"explicit_id,omitempty"`
	Name       string         `json:"name"`
	Kind       TaskKind       `json:"kind"`
	Properties TaskProperties `json:"properties"`
}

// TaskProperties is the property bag of a task.
type TaskProperties struct {
	ProviderType string                 `json:"provider_type"`
	Config       string                 `json:"config,omitempty"`
	With         With                   `json:"with"`
	If           string                 `json:"if,omitempty"`
	Vars         map[string]interface{} `json:"vars,omitempty"`
	OnFailure    map[string]interface{} `json:"on_failure,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// With holds provider parameters: the reserved code field, parameters the
// provider catalog declares, and everything else.
type With struct {
	Code   *string                `json:"code,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// Switch branches on one condition.
type Switch struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Kind       SwitchKind       `json:"kind"`
	Properties SwitchProperties `json:"properties"`
	Branches   Branches         `json:"branches"`
}

// SwitchProperties carries the condition body.
type SwitchProperties struct {
	Value     interface{} `json:"value,omitempty"`
	CompareTo interface{} `json:"compare_to,omitempty"`
	Assert    interface{} `json:"assert,omitempty"`
	Alias     string      `json:"alias,omitempty"`
}

// Branches are the ordered children of a switch.
type Branches struct {
	True  []Node `json:"true"`
	False []Node `json:"false"`
}

// Foreach repeats its children for every item of Value.
type Foreach struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Sequence []Node `json:"sequence"`
}

func (t *TriggerNode) NodeID() string     { return t.ID }
func (t *TriggerNode) NodeName() string   { return t.Type }
func (t *TriggerNode) NodeType() NodeType { return NodeTrigger }
func (*TriggerNode) node()                {}

func (t *Task) NodeID() string     { return t.ID }
func (t *Task) NodeName() string   { return t.Name }
func (t *Task) NodeType() NodeType { return NodeTask }
func (*Task) node()                {}

func (s *Switch) NodeID() string     { return s.ID }
func (s *Switch) NodeName() string   { return s.Name }
func (s *Switch) NodeType() NodeType { return NodeSwitch }
func (*Switch) node()                {}

func (f *Foreach) NodeID() string     { return f.ID }
func (f *Foreach) NodeName() string   { return f.Name }
func (f *Foreach) NodeType() NodeType { return NodeForeach }
func (*Foreach) node()                {}

// MarshalJSON adds the node type tag.
func (t *TriggerNode) MarshalJSON() ([]byte, error) {
	type alias TriggerNode
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeTrigger, (*alias)(t)})
}

// MarshalJSON adds the node type tag.
func (t *Task) MarshalJSON() ([]byte, error) {
	type alias Task
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeTask, (*alias)(t)})
}

// MarshalJSON adds the node type tag.
func (s *Switch) MarshalJSON() ([]byte, error) {
	type alias Switch
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeSwitch, (*alias)(s)})
}

// MarshalJSON adds the node type tag.
func (f *Foreach) MarshalJSON() ([]byte, error) {
	type alias Foreach
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeForeach, (*alias)(f)})
}

// TriggerBag reduces the triggers to one bag keyed by trigger type: manual
// maps to "true", interval to its value, alert to its filters, cel and
// only_on_change, incident to its events.
func (d *Definition) TriggerBag() map[string]interface{} {
	bag := make(map[string]interface{}, len(d.Triggers))
	for _, t := range d.Triggers {
		switch t.Type {
		case TriggerManual:
			bag[t.Type] = "true"
		case TriggerAlert:
			alert := map[string]interface{}{}
			if t.Alert != nil {
				alert["filters"] = t.Alert.Filters
				alert["cel"] = t.Alert.CEL
				alert["only_on_change"] = t.Alert.OnlyOnChange
			}
			bag[t.Type] = alert
		case TriggerIncident:
			incident := map[string]interface{}{"events": []string{}}
			if t.Incident != nil {
				incident["events"] = t.Incident.Events
			}
			bag[t.Type] = incident
		default:
			bag[t.Type] = t.Value
		}
	}
	return bag
}

// Aliases returns the sorted condition aliases declared anywhere in the tree.
func (d *Definition) Aliases() []string {
	var aliases []string
	for _, v := range Flatten(d) {
		if sw, ok := v.Node.(*Switch); ok && sw.Properties.Alias != "" {
			aliases = append(aliases, sw.Properties.Alias)
		}
	}
	sort.Strings(aliases)
	return aliases
}

// Get returns the value of a with parameter wherever it is stored.
func (w With) Get(key string) (interface{}, bool) {
	if key == codeParam {
		if w.Code == nil {
			return nil, false
		}
		return *w.Code, true
	}
	if v, ok := w.Params[key]; ok {
		return v, true
	}
	v, ok := w.Extra[key]
	return v, ok
}

// Len is the number of parameters set.
func (w With) Len() int {
	n := len(w.Params) + len(w.Extra)
	if w.Code != nil {
		n++
	}
	return n
}

// Keys returns every parameter name, sorted.
func (w With) Keys() []string {
	keys := make([]string, 0, w.Len())
	if w.Code != nil {
		keys = append(keys, codeParam)
	}
	for k := range w.Params {
		keys = append(keys, k)
	}
	for k := range w.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
