package mustache

import "strings"

// Dependencies lists what a workflow reads from its environment, grouped by
// namespace. Every member is the path after the namespace, e.g. the
// expression "alert.labels.severity" contributes "labels.severity" to Alert.
type Dependencies struct {
	Providers []string `json:"providers"`
	Secrets   []string `json:"secrets"`
	Inputs    []string `json:"inputs"`
	Alert     []string `json:"alert"`
	Incident  []string `json:"incident"`
}

// ExtractDependencies classifies every placeholder in text. Unknown
// namespaces are ignored; this is a summary, not validation.
func ExtractDependencies(text string) Dependencies {
	buckets := map[string]*[]string{}
	deps := Dependencies{
		Providers: []string{},
		Secrets:   []string{},
		Inputs:    []string{},
		Alert:     []string{},
		Incident:  []string{},
	}
	buckets["providers"] = &deps.Providers
	buckets["secrets"] = &deps.Secrets
	buckets["inputs"] = &deps.Inputs
	buckets["alert"] = &deps.Alert
	buckets["incident"] = &deps.Incident

	seen := make(map[string]bool)
	for _, capture := range Extract(text) {
		namespace, member, ok := strings.Cut(capture, ".")
		if !ok || member == "" {
			continue
		}
		bucket, known := buckets[namespace]
		if !known {
			continue
		}
		key := namespace + "." + member
		if seen[key] {
			continue
		}
		seen[key] = true
		*bucket = append(*bucket, member)
	}
	return deps
}

// Empty reports whether no dependency was found.
func (d Dependencies) Empty() bool {
	return len(d.Providers)+len(d.Secrets)+len(d.Inputs)+len(d.Alert)+len(d.Incident) == 0
}
