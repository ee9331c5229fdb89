package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kris-hansen/stepwise/utils/catalog"
)

// sequentialIDs makes generated ids predictable.
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("node-%d", n)
	}
}

const roundTripSource = `workflow:
  id: disk-usage
  name: Disk usage check
  description: Notify when disks fill up
  triggers:
    - type: manual
    - type: interval
      value: 300
    - type: alert
      filters:
        - key: source
          value: grafana
      only_on_change:
        - status
  consts:
    limit: 90
  inputs:
    - name: host
      type: string
      required: true
  steps:
    - name: check-disk
      id: check-disk
      vars:
        target: "{{ inputs.host }}"
      provider:
        type: ssh
        config: "{{ providers.default-ssh }}"
        with:
          command: df -h
    - name: per-host
      foreach: "{{ steps.check-disk.results }}"
      provider:
        type: http
        with:
          url: "{{ value }}"
  actions:
    - name: notify
      condition:
        - name: disk full
          type: threshold
          value: "{{ steps.check-disk.results.percent }}"
          compare_to: "{{ consts.limit }}"
      provider:
        type: slack
        config: "{{ providers.team-slack }}"
        with:
          message: Disk at {{ steps.check-disk.results.percent }}
          blocks:
            - type: section
    - name: audit
      if: "{{ alert.severity == 'critical' }}"
      provider:
        type: console
        with:
          code: print(1)
  on-failure:
    provider:
      type: slack
      with:
        message: failed
`

func TestRoundTrip(t *testing.T) {
	original, err := Load(roundTripSource)
	require.NoError(t, err)

	def, err := Parse(roundTripSource, Options{NewID: sequentialIDs()})
	require.NoError(t, err)

	text, err := Serialize(def)
	require.NoError(t, err)

	back, err := Load(text)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestRoundTripKeepsScalarTypes(t *testing.T) {
	src := `workflow:
  name: cpu
  steps:
    - name: cpu
      vars:
        limit: 5
        label: high
      provider:
        type: prometheus
        with:
          query: avg(cpu)
          window: 5
  actions:
    - name: page
      condition:
        - name: over
          type: threshold
          value: "{{ steps.cpu.results }}"
          compare_to: 70
      provider:
        type: pagerduty
`
	def, err := Parse(src, Options{})
	require.NoError(t, err)
	text, err := Serialize(def)
	require.NoError(t, err)

	var original, back map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(src), &original))
	require.NoError(t, yaml.Unmarshal([]byte(text), &back))
	assert.Equal(t, original, back)

	sw := def.Sequence[1].(*Switch)
	assert.Equal(t, 70, sw.Properties.CompareTo)
	assert.Equal(t, "70", Text(sw.Properties.CompareTo))
}

func TestParseShapes(t *testing.T) {
	def, err := Parse(roundTripSource, Options{NewID: sequentialIDs()})
	require.NoError(t, err)

	require.Len(t, def.Sequence, 4)

	task, ok := def.Sequence[0].(*Task)
	require.True(t, ok)
	assert.Equal(t, "check-disk", task.ID)
	assert.True(t, task.ExplicitID)
	assert.Equal(t, KindStep, task.Kind)

	loop, ok := def.Sequence[1].(*Foreach)
	require.True(t, ok)
	assert.Equal(t, "{{ steps.check-disk.results }}", loop.Value)
	require.Len(t, loop.Sequence, 1)
	assert.Equal(t, "per-host", loop.Sequence[0].NodeName())

	sw, ok := def.Sequence[2].(*Switch)
	require.True(t, ok)
	assert.Equal(t, SwitchThreshold, sw.Kind)
	assert.Equal(t, "disk full", sw.Name)
	assert.Empty(t, sw.Branches.False)
	require.Len(t, sw.Branches.True, 1)
	notify := sw.Branches.True[0].(*Task)
	assert.Equal(t, KindAction, notify.Kind)

	audit := def.Sequence[3].(*Task)
	assert.Equal(t, "{{ alert.severity == 'critical' }}", audit.Properties.If)
	require.NotNil(t, audit.Properties.With.Code)
	assert.Equal(t, "print(1)", *audit.Properties.With.Code)

	require.NotNil(t, def.Properties.OnFailure)
	assert.Equal(t, KindAction, def.Properties.OnFailure.Kind)

	bag := def.TriggerBag()
	assert.Equal(t, "true", bag["manual"])
	assert.Equal(t, "300", bag["interval"])
	alert := bag["alert"].(map[string]interface{})
	assert.Equal(t, []Filter{{Key: "source", Value: "grafana"}}, alert["filters"])
	assert.Equal(t, []string{"status"}, alert["only_on_change"])
}

func TestParseWithCatalog(t *testing.T) {
	cat := catalog.Catalog{
		{Type: "slack", CanNotify: true, NotifyParams: []string{"message"}},
	}
	src := `workflow:
  actions:
    - name: notify
      provider:
        type: slack
        with:
          message: hi
          emoji: ":wave:"
          code: "x = 1"
`
	def, err := Parse(src, Options{Catalog: cat})
	require.NoError(t, err)

	with := def.Sequence[0].(*Task).Properties.With
	assert.Equal(t, map[string]interface{}{"message": "hi"}, with.Params)
	assert.Equal(t, map[string]interface{}{"emoji": ":wave:"}, with.Extra)
	assert.Equal(t, []string{"code", "emoji", "message"}, with.Keys())

	v, ok := with.Get("code")
	require.True(t, ok)
	assert.Equal(t, "x = 1", v)
}

func TestParseUnknownProviderTolerated(t *testing.T) {
	src := "workflow:\n  steps:\n    - name: a\n      provider:\n        type: does-not-exist\n"
	def, err := Parse(src, Options{Catalog: catalog.Catalog{{Type: "http"}}})
	require.NoError(t, err)
	assert.Equal(t, "does-not-exist", def.Sequence[0].(*Task).Properties.ProviderType)
}

func TestParseAliasAttachment(t *testing.T) {
	src := `workflow:
  actions:
    - name: first
      condition:
        - type: assert
          assert: "{{ steps.a.results }} == 1"
          alias: ok
      provider:
        type: console
    - name: second
      if: "{{ ok }}"
      provider:
        type: console
    - name: third
      if: "{{ ok }}"
      foreach: "{{ steps.a.results }}"
      provider:
        type: console
`
	def, err := Parse(src, Options{NewID: sequentialIDs()})
	require.NoError(t, err)
	require.Len(t, def.Sequence, 1)

	sw := def.Sequence[0].(*Switch)
	assert.Equal(t, SwitchAssert, sw.Kind)
	assert.Equal(t, "assert", sw.Name)
	require.Len(t, sw.Branches.True, 3)

	second := sw.Branches.True[1].(*Task)
	assert.Empty(t, second.Properties.If)
	_, isLoop := sw.Branches.True[2].(*Foreach)
	assert.True(t, isLoop)
	assert.Equal(t, []string{"ok"}, def.Aliases())

	wf, err := ToWorkflow(def)
	require.NoError(t, err)
	require.Len(t, wf.Actions, 3)
	assert.Equal(t, "ok", wf.Actions[0].Condition[0].Alias)
	assert.Equal(t, "{{ ok }}", wf.Actions[1].If)
	assert.Equal(t, "{{ ok }}", wf.Actions[2].If)
	assert.Equal(t, "{{ steps.a.results }}", wf.Actions[2].Foreach)
}

func TestParseUnmatchedIf(t *testing.T) {
	t.Run("plain task keeps if", func(t *testing.T) {
		src := "workflow:\n  steps:\n    - name: a\n      if: \"{{ inputs.go }}\"\n      provider:\n        type: console\n"
		def, err := Parse(src, Options{})
		require.NoError(t, err)
		task := def.Sequence[0].(*Task)
		assert.Equal(t, "{{ inputs.go }}", task.Properties.If)
	})

	t.Run("with foreach", func(t *testing.T) {
		src := "workflow:\n  steps:\n    - name: a\n      if: \"{{ inputs.go }}\"\n      foreach: \"{{ inputs.items }}\"\n      provider:\n        type: console\n"
		def, err := Parse(src, Options{})
		require.NoError(t, err)
		loop := def.Sequence[0].(*Foreach)
		assert.Equal(t, "{{ inputs.go }}", loop.Sequence[0].(*Task).Properties.If)
	})

	t.Run("with condition is rejected", func(t *testing.T) {
		src := `workflow:
  steps:
    - name: a
      if: "{{ nothing }}"
      condition:
        - type: assert
          assert: "1 == 1"
      provider:
        type: console
`
		_, err := Parse(src, Options{})
		assert.True(t, errors.Is(err, ErrConditionWithUnmatchedIf))
	})
}

func TestParseNestedConditions(t *testing.T) {
	src := `workflow:
  steps:
    - name: guarded
      foreach: "{{ inputs.items }}"
      condition:
        - name: outer
          type: assert
          assert: "1 == 1"
        - name: inner
          type: threshold
          value: "{{ . }}"
          compare_to: "3"
      provider:
        type: console
`
	def, err := Parse(src, Options{NewID: sequentialIDs()})
	require.NoError(t, err)

	loop := def.Sequence[0].(*Foreach)
	outer := loop.Sequence[0].(*Switch)
	assert.Equal(t, "outer", outer.Name)
	inner := outer.Branches.True[0].(*Switch)
	assert.Equal(t, "inner", inner.Name)
	assert.Equal(t, "guarded", inner.Branches.True[0].NodeName())

	wf, err := ToWorkflow(def)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, "{{ inputs.items }}", wf.Steps[0].Foreach)
	require.Len(t, wf.Steps[0].Condition, 2)
	assert.Equal(t, "outer", wf.Steps[0].Condition[0].Name)
	assert.Equal(t, "inner", wf.Steps[0].Condition[1].Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{name: "syntax", src: "workflow:\n  steps: [\n", want: ErrMalformed},
		{name: "empty", src: "", want: ErrEmptyDocument},
		{name: "scalar root", src: "just text", want: ErrMalformed},
		{
			name: "unknown condition type",
			src:  "workflow:\n  steps:\n    - name: a\n      condition:\n        - type: regex\n      provider:\n        type: console\n",
			want: ErrUnknownConditionType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMalformedKeepsLine(t *testing.T) {
	_, err := Load("workflow:\n  name: x\n  steps: [\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line")
}

func TestSerializeSharedCondition(t *testing.T) {
	def := &Definition{
		Properties: Properties{ID: "wf", Name: "fan-out"},
		Sequence: []Node{
			&Switch{
				ID:   "sw",
				Name: "High CPU",
				Kind: SwitchThreshold,
				Properties: SwitchProperties{
					Value:     "{{ steps.cpu.results }}",
					CompareTo: "80",
				},
				Branches: Branches{
					True: []Node{
						&Task{ID: "a", Name: "page", Kind: KindAction, Properties: TaskProperties{ProviderType: "pagerduty"}},
						&Task{ID: "b", Name: "chat", Kind: KindAction, Properties: TaskProperties{ProviderType: "slack"}},
					},
					False: []Node{},
				},
			},
		},
	}

	wf, err := ToWorkflow(def)
	require.NoError(t, err)
	require.Len(t, wf.Actions, 2)

	first, second := wf.Actions[0], wf.Actions[1]
	require.Len(t, first.Condition, 1)
	assert.Equal(t, "high_cpu", first.Condition[0].Alias)
	assert.Equal(t, "threshold", first.Condition[0].Type)
	assert.Empty(t, first.If)
	assert.Empty(t, second.Condition)
	assert.Equal(t, "{{ high_cpu }}", second.If)

	// The alias must bring both entries back under one switch.
	text, err := Serialize(def)
	require.NoError(t, err)
	back, err := Parse(text, Options{})
	require.NoError(t, err)
	require.Len(t, back.Sequence, 1)
	assert.Len(t, back.Sequence[0].(*Switch).Branches.True, 2)
}

func TestSerializeAutoAliasIsUnique(t *testing.T) {
	shared := func(id string) *Switch {
		return &Switch{
			ID: id, Name: "check", Kind: SwitchAssert,
			Properties: SwitchProperties{Assert: "1 == 1"},
			Branches: Branches{True: []Node{
				&Task{ID: id + "-1", Name: id + "-1", Kind: KindStep},
				&Task{ID: id + "-2", Name: id + "-2", Kind: KindStep},
			}},
		}
	}
	existing := shared("x")
	existing.Properties.Alias = "check"
	def := &Definition{Sequence: []Node{existing, shared("y")}}

	wf, err := ToWorkflow(def)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 4)
	assert.Equal(t, "check", wf.Steps[0].Condition[0].Alias)
	assert.Equal(t, "check_2", wf.Steps[2].Condition[0].Alias)
	assert.Equal(t, "{{ check_2 }}", wf.Steps[3].If)
}

func TestSerializeCoercesJSON(t *testing.T) {
	code := `{"not": "parsed"}`
	def := &Definition{Sequence: []Node{
		&Task{ID: "t", Name: "t", Kind: KindStep, Properties: TaskProperties{
			ProviderType: "http",
			With: With{
				Code:   &code,
				Params: map[string]interface{}{"body": `{"a": 1}`, "url": "http://x"},
				Extra:  map[string]interface{}{"list": `[1, 2]`, "broken": `{nope`},
			},
		}},
	}}

	wf, err := ToWorkflow(def)
	require.NoError(t, err)
	with := wf.Steps[0].Provider.With
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, with["body"])
	assert.Equal(t, []interface{}{float64(1), float64(2)}, with["list"])
	assert.Equal(t, `{nope`, with["broken"])
	assert.Equal(t, "http://x", with["url"])
	assert.Equal(t, code, with["code"])
}

func TestSerializeRejectsInexpressibleTrees(t *testing.T) {
	t.Run("false branch", func(t *testing.T) {
		def := &Definition{Sequence: []Node{&Switch{
			Name: "c", Kind: SwitchAssert,
			Branches: Branches{False: []Node{&Task{Name: "t", Kind: KindStep}}},
		}}}
		_, err := Serialize(def)
		assert.ErrorIs(t, err, ErrFalseBranch)
	})

	t.Run("nested foreach", func(t *testing.T) {
		def := &Definition{Sequence: []Node{&Foreach{
			Name: "foreach", Value: "{{ a }}",
			Sequence: []Node{&Foreach{Name: "foreach", Value: "{{ b }}", Sequence: []Node{&Task{Name: "t"}}}},
		}}}
		_, err := Serialize(def)
		assert.ErrorIs(t, err, ErrNestedForeach)
	})

	t.Run("empty true branch", func(t *testing.T) {
		def := &Definition{Sequence: []Node{&Switch{
			Name: "c", Kind: SwitchAssert,
			Properties: SwitchProperties{Assert: "1 == 1"},
			Branches:   Branches{True: []Node{}, False: []Node{}},
		}}}
		_, err := Serialize(def)
		assert.ErrorIs(t, err, ErrEmptyBranch)
	})

	t.Run("step sharing an action condition", func(t *testing.T) {
		def := &Definition{Sequence: []Node{&Switch{
			Name: "c", Kind: SwitchAssert,
			Properties: SwitchProperties{Assert: "1 == 1"},
			Branches: Branches{True: []Node{
				&Task{Name: "notify", Kind: KindAction},
				&Task{Name: "collect", Kind: KindStep},
			}},
		}}}
		_, err := Serialize(def)
		assert.ErrorIs(t, err, ErrAliasOrder)
	})

	t.Run("action sharing a step condition", func(t *testing.T) {
		def := &Definition{Sequence: []Node{&Switch{
			Name: "c", Kind: SwitchAssert,
			Properties: SwitchProperties{Assert: "1 == 1"},
			Branches: Branches{True: []Node{
				&Task{Name: "collect", Kind: KindStep},
				&Task{Name: "notify", Kind: KindAction},
			}},
		}}}
		text, err := Serialize(def)
		require.NoError(t, err)

		back, err := Parse(text, Options{})
		require.NoError(t, err)
		require.Len(t, back.Sequence, 1)
		assert.Len(t, back.Sequence[0].(*Switch).Branches.True, 2)
	})

	t.Run("trigger in sequence", func(t *testing.T) {
		def := &Definition{Sequence: []Node{&TriggerNode{Type: "manual"}}}
		_, err := Serialize(def)
		assert.ErrorIs(t, err, ErrUnexpectedNode)
	})
}

func TestSerializeOmitsGeneratedIDs(t *testing.T) {
	src := "workflow:\n  steps:\n    - name: a\n      provider:\n        type: console\n"
	def, err := Parse(src, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, def.Sequence[0].NodeID())

	wf, err := ToWorkflow(def)
	require.NoError(t, err)
	assert.Empty(t, wf.Steps[0].ID)
}

func TestWalkOrder(t *testing.T) {
	def, err := Parse(roundTripSource, Options{NewID: sequentialIDs()})
	require.NoError(t, err)

	var names []string
	for _, v := range Flatten(def) {
		names = append(names, string(v.Node.NodeType())+":"+v.Node.NodeName())
	}
	assert.Equal(t, []string{
		"task:check-disk",
		"foreach:foreach",
		"task:per-host",
		"switch:disk full",
		"task:notify",
		"task:audit",
		"task:",
	}, names)

	v, ok := Find(def, "check-disk")
	require.True(t, ok)
	assert.Equal(t, 0, v.Depth)
	assert.False(t, v.InForeach)

	perHost := def.Sequence[1].(*Foreach).Sequence[0]
	v, ok = Find(def, perHost.NodeID())
	require.True(t, ok)
	assert.True(t, v.InForeach)
	assert.Equal(t, 1, v.Depth)
	assert.Equal(t, def.Sequence[1], v.Parent)

	_, ok = Find(def, "missing")
	assert.False(t, ok)

	assert.Len(t, Tasks(def), 5)
}
