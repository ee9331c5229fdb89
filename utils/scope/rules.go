package scope

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/kris-hansen/stepwise/utils/mustache"
)

var (
	allowedChars = regexp.MustCompile(`^[A-Za-z0-9._\-\s]*$`)
	bracketChars = regexp.MustCompile(`[\[\]]`)
)

// namespaces are the first segments a reference may start with.
var namespaces = []string{
	"providers", "secrets", "consts", "vars", "inputs",
	"alert", "incident", "steps", "foreach", "value",
}

// ValidateString checks every placeholder in text and returns the findings
// in order of appearance.
func (s *Scope) ValidateString(text string) []Result {
	var results []Result
	for _, expr := range mustache.Extract(text) {
		if r := s.Validate(expr); r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// Validate checks one expression, with or without its braces. It returns
// nil when the reference can resolve.
func (s *Scope) Validate(expression string) *Result {
	expr := mustache.Clean(expression)
	if expr == "" {
		return &Result{Message: "Empty mustache expression.", Severity: SeverityWarning}
	}

	if expr == "." {
		if s.InForeach {
			return nil
		}
		return s.warn(expr, "short syntax can only be used in a step within foreach.")
	}

	if !allowedChars.MatchString(expr) {
		if bracketChars.MatchString(expr) {
			return s.warn(expr, "bracket notation is not supported, use dot notation instead.")
		}
		return s.warn(expr, "contains invalid characters.")
	}

	segments := strings.Split(expr, ".")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
		if segments[i] == "" {
			return s.warn(expr, "path has an empty segment.")
		}
	}

	switch segments[0] {
	case "foreach", "value":
		if s.InForeach {
			return nil
		}
		return s.warn(expr, "'foreach' and 'value' can only be used in a step within foreach.")
	case "alert", "incident":
		return s.event(expr, segments[0])
	case "secrets":
		return s.secret(expr, segments)
	case "providers":
		return s.provider(expr, segments)
	case "vars":
		return s.variable(expr, segments)
	case "consts":
		return s.constant(expr, segments)
	case "inputs":
		return s.input(expr, segments)
	case "steps":
		return s.step(expr, segments)
	}

	if len(segments) == 1 && s.def.aliases[segments[0]] {
		return nil
	}
	r := s.warn(expr, "unknown variable.")
	r.Hint = suggest(segments[0], append(append([]string(nil), namespaces...), sortedKeys(s.def.aliases)...))
	return r
}

func (s *Scope) event(expr, kind string) *Result {
	if s.def.triggers == nil || s.def.triggers[kind] {
		return nil
	}
	return &Result{
		Expression: expr,
		Message:    fmt.Sprintf("Variable: '%s' - the workflow has no %s trigger, the value is only set when an %s starts it.", expr, kind, kind),
		Severity:   SeverityInfo,
	}
}

func (s *Scope) secret(expr string, segments []string) *Result {
	if len(segments) < 2 {
		return s.fail(expr, "secret name is missing.")
	}
	if s.def.opts.Secrets == nil {
		return nil
	}
	name := segments[1]
	if s.def.opts.Secrets.Has(name) {
		return nil
	}
	r := s.fail(expr, fmt.Sprintf("secret '%s' not found.", name))
	r.Hint = suggest(name, sortedKeys(s.def.opts.Secrets))
	return r
}

func (s *Scope) provider(expr string, segments []string) *Result {
	providers := s.def.opts.Providers
	if providers == nil {
		return nil
	}
	if len(segments) < 2 {
		return s.warn(expr, "provider name is missing.")
	}
	name := segments[1]

	if providerType, ok := strings.CutPrefix(name, "default-"); ok {
		if _, known := providers.Lookup(providerType); !known {
			r := s.warn(expr, fmt.Sprintf("unknown provider type '%s'.", providerType))
			r.Hint = suggest(providerType, providers.Types())
			return r
		}
		if !providers.NeedsInstallation(providerType) || len(providers.InstalledNames(providerType)) > 0 {
			return nil
		}
		return s.warn(expr, fmt.Sprintf("provider '%s' is not installed.", name))
	}

	if providers.HasInstalled(name) {
		return nil
	}
	msg := fmt.Sprintf("provider '%s' is not installed.", name)
	if s.ProviderType != "" {
		if alternatives := providers.InstalledNames(s.ProviderType); len(alternatives) > 0 {
			msg += fmt.Sprintf(" Installed %s providers: %s.", s.ProviderType, strings.Join(alternatives, ", "))
		}
	}
	r := s.warn(expr, msg)
	r.Hint = suggest(name, providers.InstalledNames(""))
	return r
}

func (s *Scope) variable(expr string, segments []string) *Result {
	if len(segments) < 2 {
		return s.fail(expr, "variable name is missing.")
	}
	if s.Vars[segments[1]] {
		return nil
	}
	r := s.fail(expr, fmt.Sprintf("variable '%s' is not defined in the step's vars.", segments[1]))
	r.Hint = suggest(segments[1], sortedKeys(s.Vars))
	return r
}

func (s *Scope) constant(expr string, segments []string) *Result {
	if len(segments) < 2 {
		return s.fail(expr, "constant name is missing.")
	}
	if s.def.consts[segments[1]] {
		return nil
	}
	r := s.fail(expr, fmt.Sprintf("constant '%s' is not defined.", segments[1]))
	r.Hint = suggest(segments[1], sortedKeys(s.def.consts))
	return r
}

func (s *Scope) input(expr string, segments []string) *Result {
	if len(segments) < 2 {
		return s.fail(expr, "input name is missing.")
	}
	name := segments[1]
	for _, in := range s.def.inputs {
		if in == name {
			return nil
		}
	}
	available := "No inputs are defined."
	if len(s.def.inputs) > 0 {
		available = fmt.Sprintf("Available inputs: %s.", strings.Join(s.def.inputs, ", "))
	}
	r := s.fail(expr, fmt.Sprintf("input '%s' is not defined. %s", name, available))
	r.Hint = suggest(name, s.def.inputs)
	return r
}

func (s *Scope) step(expr string, segments []string) *Result {
	if len(segments) < 2 {
		return s.fail(expr, "step name is missing.")
	}
	name := segments[1]

	if name == s.Step {
		return s.fail(expr, "can't access the results of the current step.")
	}
	index := s.def.indexOf(name)
	if index < 0 {
		r := s.fail(expr, fmt.Sprintf("a step named '%s' does not exist.", name))
		r.Hint = suggest(name, s.def.order)
		return r
	}
	if index > s.position {
		return s.fail(expr, "can't access the results of a future step.")
	}

	rest := strings.Join(segments[2:], ".")
	if rest != "results" && !strings.HasPrefix(rest, "results.") && !strings.HasPrefix(rest, "results[") {
		return s.warn(expr, "use 'results' as suffix to access a step's output.")
	}
	return nil
}

func (s *Scope) fail(expr, detail string) *Result {
	return &Result{Expression: expr, Message: fmt.Sprintf("Variable: '%s' - %s", expr, detail), Severity: SeverityError}
}

func (s *Scope) warn(expr, detail string) *Result {
	return &Result{Expression: expr, Message: fmt.Sprintf("Variable: '%s' - %s", expr, detail), Severity: SeverityWarning}
}

// suggest returns a "did you mean" hint for the closest candidate.
func suggest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(name, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		if ranks[0].Target == name {
			return ""
		}
		return fmt.Sprintf("Did you mean '%s'?", ranks[0].Target)
	}

	// No candidate contains name; fall back to small edit distances.
	best, distance := "", 3
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(strings.ToLower(name), strings.ToLower(c)); d < distance {
			best, distance = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("Did you mean '%s'?", best)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
