// Package catalog describes the provider catalog and secret store consumed
// read-only by the parser and validators.
package catalog

import "sort"

// ConfigField describes one installation setting of a provider.
type ConfigField struct {
	Required    bool   `json:"required" yaml:"required" toml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Sensitive   bool   `json:"sensitive,omitempty" yaml:"sensitive,omitempty" toml:"sensitive"`
}

// Details holds the user-facing data of an installed provider.
type Details struct {
	Name string `json:"name" yaml:"name" toml:"name"`
}

// Provider is an integration descriptor. The same type can appear several
// times: once as the available integration and once per installation.
type Provider struct {
	ID           string                 `json:"id,omitempty" yaml:"id,omitempty" toml:"id"`
	Type         string                 `json:"type" yaml:"type" toml:"type"`
	CanQuery     bool                   `json:"can_query" yaml:"can_query" toml:"can_query"`
	CanNotify    bool                   `json:"can_notify" yaml:"can_notify" toml:"can_notify"`
	QueryParams  []string               `json:"query_params,omitempty" yaml:"query_params,omitempty" toml:"query_params"`
	NotifyParams []string               `json:"notify_params,omitempty" yaml:"notify_params,omitempty" toml:"notify_params"`
	Installed    bool                   `json:"installed" yaml:"installed" toml:"installed"`
	Details      Details                `json:"details" yaml:"details" toml:"details"`
	Config       map[string]ConfigField `json:"config,omitempty" yaml:"config,omitempty" toml:"config"`
}

// Catalog is the list of known providers. A nil Catalog means "not
// supplied" and disables every provider check.
type Catalog []Provider

// Lookup returns the first provider of the given type.
func (c Catalog) Lookup(providerType string) (Provider, bool) {
	for _, p := range c {
		if p.Type == providerType {
			return p, true
		}
	}
	return Provider{}, false
}

// NeedsInstallation reports whether providers of this type carry any config
// and therefore must be installed before use.
func (c Catalog) NeedsInstallation(providerType string) bool {
	for _, p := range c {
		if p.Type == providerType && len(p.Config) > 0 {
			return true
		}
	}
	return false
}

// Installed returns the installed providers of a type, or every installed
// provider when providerType is empty.
func (c Catalog) Installed(providerType string) []Provider {
	var out []Provider
	for _, p := range c {
		if !p.Installed {
			continue
		}
		if providerType != "" && p.Type != providerType {
			continue
		}
		out = append(out, p)
	}
	return out
}

// InstalledNames returns the sorted installation names of a provider type.
func (c Catalog) InstalledNames(providerType string) []string {
	var names []string
	for _, p := range c.Installed(providerType) {
		if p.Details.Name != "" {
			names = append(names, p.Details.Name)
		}
	}
	sort.Strings(names)
	return names
}

// HasInstalled reports whether an installed provider carries this name.
func (c Catalog) HasInstalled(name string) bool {
	for _, p := range c.Installed("") {
		if p.Details.Name == name {
			return true
		}
	}
	return false
}

// Params returns the declared parameter names for a provider type: query
// params for steps, notify params for actions.
func (c Catalog) Params(providerType string, action bool) []string {
	p, ok := c.Lookup(providerType)
	if !ok {
		return nil
	}
	if action {
		return p.NotifyParams
	}
	return p.QueryParams
}

// Types returns every distinct provider type, sorted.
func (c Catalog) Types() []string {
	return c.typesWhere(func(Provider) bool { return true })
}

// QueryTypes returns the types usable as steps.
func (c Catalog) QueryTypes() []string {
	return c.typesWhere(func(p Provider) bool { return p.CanQuery })
}

// NotifyTypes returns the types usable as actions.
func (c Catalog) NotifyTypes() []string {
	return c.typesWhere(func(p Provider) bool { return p.CanNotify })
}

func (c Catalog) typesWhere(keep func(Provider) bool) []string {
	seen := make(map[string]bool)
	var types []string
	for _, p := range c {
		if seen[p.Type] || !keep(p) {
			continue
		}
		seen[p.Type] = true
		types = append(types, p.Type)
	}
	sort.Strings(types)
	return types
}

// Secrets maps secret names to values. Only existence is ever checked. A nil
// map means "not supplied".
type Secrets map[string]string

// Has reports whether the secret exists.
func (s Secrets) Has(name string) bool {
	_, ok := s[name]
	return ok
}
