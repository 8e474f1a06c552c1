package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// IgnoreConfig lists upstream release tags that must never be published.
// An app value is either an array of tag patterns applying to every asset
// of a release, or an object with an "all" array plus per-ABI arrays
// ("arm64-v8a", "armeabi-v7a", "universal"):
//
//	{
//	  "signal": ["v7.0.0", "v6.9"],
//	  "newpipe": {"all": ["v0.27.0"], "armeabi-v7a": ["v0.26"]}
//	}
//
// A pattern matches a tag exactly or as a prefix.
type IgnoreConfig map[string]any

// LoadIgnoreConfig loads an ignore configuration file if provided.
// Returns an empty config if filePath is empty.
func LoadIgnoreConfig(filePath string) (IgnoreConfig, error) {
	if filePath == "" {
		return IgnoreConfig{}, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", filePath, err)
	}
	var raw map[string]any
	switch ext := filepath.Ext(filePath); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML ignore file %s: %w", filePath, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON ignore file %s: %w", filePath, err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return IgnoreConfig(raw), nil
}

// IsReleaseIgnored returns true if every asset of the release is ignored.
func (ic IgnoreConfig) IsReleaseIgnored(logicalID, tag string) bool {
	v, ok := ic[logicalID]
	if !ok {
		return false
	}
	switch rules := v.(type) {
	case []any:
		return matchPatterns(rules, tag)
	case map[string]any:
		if all, ok := rules["all"].([]any); ok {
			return matchPatterns(all, tag)
		}
	}
	return false
}

// IsAssetIgnored returns true if the release is ignored for a specific ABI.
func (ic IgnoreConfig) IsAssetIgnored(logicalID, tag, abi string) bool {
	if ic.IsReleaseIgnored(logicalID, tag) {
		return true
	}
	rules, ok := ic[logicalID].(map[string]any)
	if !ok {
		return false
	}
	arr, ok := rules[abi].([]any)
	return ok && matchPatterns(arr, tag)
}

func matchPatterns(patterns []any, tag string) bool {
	for _, p := range patterns {
		s, ok := p.(string)
		if !ok || s == "" {
			continue
		}
		if s == tag {
			return true
		}
		if len(tag) > len(s) && tag[:len(s)] == s {
			return true
		}
	}
	return false
}
