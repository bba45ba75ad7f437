package config

import "fmt"

const redacted = "********"

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string `yaml:"key"`
	EnvVar string `yaml:"env"`
	Value  string `yaml:"value"`
}

// ShowAll returns every config key with its effective value. Secrets are
// masked; an unset secret shows as an empty string.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		v := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret && v != "" {
			v = redacted
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  v,
		})
	}
	return result
}

// ValidKeys returns the list of config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
