// Package secrets resolves oracle API keys from files, config values or the environment.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotConfigured is returned when no source holds a usable secret.
var ErrNotConfigured = errors.New("secret is not configured")

// Source describes where an API key may live. Lookups go File, then Value, then Env.
type Source struct {
	// Name is used in error messages, e.g. "openai api key".
	Name string
	// File points to a file holding the key. A set but unreadable or empty file is an error.
	File string
	// Value is an inline key from configuration.
	Value string
	// Env names an environment variable consulted last.
	Env string
}

func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%s (file, value or $%s): %w", name, env, ErrNotConfigured)
	}

	return "", fmt.Errorf("%s: %w", name, ErrNotConfigured)
}
