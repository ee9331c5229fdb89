package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/kris-hansen/stepwise/utils/catalog"
	"github.com/kris-hansen/stepwise/utils/formatter"
	"github.com/kris-hansen/stepwise/utils/workflow"
)

// Severity of a schema finding.
const (
	SeverityFatal = "fatal"
	SeverityError = "error"
)

// Diagnostic is one structural problem. Line and Column are 1-based; 0 means
// the position is unknown.
type Diagnostic struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("Line %d, column %d: %s", d.Line, d.Column, d.Message)
	}
	return d.Message
}

// Report holds every finding for one document. Fatal is set when the text
// could not be parsed at all, in which case Diagnostics has exactly one entry.
type Report struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
	Fatal       bool         `json:"fatal"`
}

// Valid reports whether the document passed.
func (r Report) Valid() bool {
	return len(r.Diagnostics) == 0
}

// ErrorSummary lists the findings one per line, numbered.
func (r Report) ErrorSummary() string {
	if r.Valid() {
		return ""
	}
	lines := []string{"Validation errors found:"}
	for i, d := range r.Diagnostics {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, d.String()))
	}
	return strings.Join(lines, "\n")
}

// Options configures Validate.
type Options struct {
	// Providers discriminates provider types when set.
	Providers catalog.Catalog
}

var syntaxLine = regexp.MustCompile(`line (\d+)`)

var printer = message.NewPrinter(language.English)

// ErrNoSteps is reported when neither steps nor actions has entries.
var ErrNoSteps = errors.New("workflow must define at least one step or action")

// Validate checks text against the workflow schema.
func Validate(text string, opts Options) Report {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return fatal(err)
	}
	body, wrapped := workflow.Body(&root)
	if body == nil {
		return Report{Fatal: true, Diagnostics: []Diagnostic{{
			Message:  workflow.ErrEmptyDocument.Error(),
			Severity: SeverityFatal,
		}}}
	}

	var value interface{}
	if err := body.Decode(&value); err != nil {
		return fatal(err)
	}
	instance, err := normalize(value)
	if err != nil {
		return fatal(err)
	}

	sch, err := Compile(opts.Providers)
	if err != nil {
		return fatal(err)
	}

	var report Report
	if err := sch.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return fatal(err)
		}
		for _, leaf := range leaves(ve) {
			report.Diagnostics = append(report.Diagnostics, describe(body, leaf, wrapped)...)
		}
	}

	if body.Kind == yaml.MappingNode && empty(body, "steps") && empty(body, "actions") {
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Line:     body.Line,
			Column:   body.Column,
			Message:  ErrNoSteps.Error(),
			Severity: SeverityError,
		})
	}
	return report
}

func fatal(err error) Report {
	d := Diagnostic{Message: err.Error(), Severity: SeverityFatal}
	if m := syntaxLine.FindStringSubmatch(err.Error()); m != nil {
		d.Line, _ = strconv.Atoi(m[1])
	}
	return Report{Fatal: true, Diagnostics: []Diagnostic{d}}
}

// normalize turns a decoded YAML value into the JSON data model the schema
// library works on.
func normalize(value interface{}) (any, error) {
	data, err := json.Marshal(jsonable(value))
	if err != nil {
		return nil, fmt.Errorf("failed to convert workflow to JSON: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

func jsonable(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = jsonable(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonable(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = jsonable(item)
		}
		return out
	}
	return v
}

// leaves collects the innermost causes of a validation error.
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var flat []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, leaves(cause)...)
	}
	return flat
}

// describe turns one violation into diagnostics, one per missing field for
// required violations.
func describe(body *yaml.Node, ve *jsonschema.ValidationError, wrapped bool) []Diagnostic {
	location := ve.InstanceLocation

	if req, ok := ve.ErrorKind.(*kind.Required); ok {
		diags := make([]Diagnostic, 0, len(req.Missing))
		for _, field := range req.Missing {
			path := append(append([]string(nil), location...), field)
			diags = append(diags, at(body, path, wrapped, Diagnostic{
				Message:  fmt.Sprintf("'%s' field is required in '%s'", field, parentName(location)),
				Severity: SeverityError,
			}))
		}
		return diags
	}

	return []Diagnostic{at(body, location, wrapped, Diagnostic{
		Message:  ve.ErrorKind.LocalizedString(printer),
		Severity: SeverityError,
	})}
}

// at fills in the position of path, falling back to the closest ancestor
// that exists.
func at(body *yaml.Node, path []string, wrapped bool, d Diagnostic) Diagnostic {
	node, _ := formatter.Locate(body, path)
	if node != nil {
		d.Line, d.Column = node.Line, node.Column
	}
	d.Path = displayPath(path, wrapped)
	return d
}

// parentName is the last non-index segment of location, or "workflow" for
// the root.
func parentName(location []string) string {
	for i := len(location) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(location[i]); err != nil {
			return location[i]
		}
	}
	return "workflow"
}

func displayPath(path []string, wrapped bool) string {
	p := formatter.Path{}
	if wrapped {
		p = append(p, "workflow")
	}
	for _, seg := range path {
		if i, err := strconv.Atoi(seg); err == nil {
			p = append(p, i)
		} else {
			p = append(p, seg)
		}
	}
	return p.String()
}

func empty(mapping *yaml.Node, key string) bool {
	v := formatter.Value(mapping, key)
	return v == nil || v.Kind != yaml.SequenceNode || len(v.Content) == 0
}
