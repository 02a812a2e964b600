package domain

import (
	"fmt"
	"sort"
	"strings"
)

// LoaderType describes a supported loader kind.
type LoaderType struct {
	// Kind is the registered tag (e.g. "sitemap", "directory").
	Kind string
	// Name is the human-readable display name.
	Name string
	// Description provides a brief explanation of the loader.
	Description string
	// CredentialEnv names the environment variable holding the loader's secret, if any.
	CredentialEnv string
	// ConfigKeys lists the configuration fields accepted by this loader.
	ConfigKeys []ConfigKey
}

// ConfigKey describes a configuration field for a loader.
type ConfigKey struct {
	// Key is the configuration key name.
	Key string
	// Description explains what this field is for.
	Description string
	// Default is the value used when the field is unset.
	Default string
	// Required indicates whether this field must be provided.
	Required bool
}

// Validate checks a provider selection against the accepted keys.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func (l *LoaderType) Validate(ref ProviderRef) error {
	known := make(map[string]bool, len(l.ConfigKeys))
	var missing []string
	for _, k := range l.ConfigKeys {
		known[k.Key] = true
		if k.Required && strings.TrimSpace(ref.Config[k.Key]) == "" {
			missing = append(missing, k.Key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: loader %s requires %s", ErrInvalidInput, l.Kind, strings.Join(missing, ", "))
	}

	var unknown []string
	for k := range ref.Config {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: loader %s does not accept %s", ErrInvalidInput, l.Kind, strings.Join(unknown, ", "))
	}
	return nil
}
