package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are not JSON, YAML or TOML.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// catalogFile is the wrapped layout. TOML has no top-level arrays, so a
// catalog there is always written as [[providers]] tables.
type catalogFile struct {
	Providers []Provider `json:"providers" yaml:"providers" toml:"providers"`
}

// LoadCatalog reads a provider catalog. JSON and YAML files may hold either a
// bare list or a {providers: [...]} object; TOML files use [[providers]].
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	c, err := ParseCatalog(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes catalog data in the given format ("json", "yaml" or
// "toml").
func ParseCatalog(data []byte, format string) (Catalog, error) {
	var wrapped catalogFile
	switch format {
	case "json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var list []Provider
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, err
			}
			return Catalog(list), nil
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
	case "yaml":
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, err
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var list []Provider
			if err := node.Content[0].Decode(&list); err != nil {
				return nil, err
			}
			return Catalog(list), nil
		}
		if err := node.Decode(&wrapped); err != nil {
			return nil, err
		}
	case "toml":
		if _, err := toml.Decode(string(data), &wrapped); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if wrapped.Providers == nil {
		return Catalog{}, nil
	}
	return Catalog(wrapped.Providers), nil
}

// LoadSecrets reads a flat name -> value map.
func LoadSecrets(path string) (Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	s, err := ParseSecrets(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse secrets %s: %w", path, err)
	}
	return s, nil
}

// ParseSecrets decodes secrets data in the given format. Non-string values
// are stringified; only presence matters.
func ParseSecrets(data []byte, format string) (Secrets, error) {
	raw := make(map[string]interface{})
	switch format {
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case "toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	secrets := make(Secrets, len(raw))
	for name, value := range raw {
		if s, ok := value.(string); ok {
			secrets[name] = s
			continue
		}
		secrets[name] = fmt.Sprint(value)
	}
	return secrets, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
