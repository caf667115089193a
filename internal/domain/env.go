package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var envNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateEnv checks that every override key is a usable environment variable name.
func ValidateEnv(env map[string]string) error {
	for name, value := range env {
		if !envNameRegex.MatchString(name) {
			return fmt.Errorf("%w: %q is not a valid variable name", ErrInvalidEnv, name)
		}
		if strings.ContainsRune(value, 0) {
			return fmt.Errorf("%w: value of %s contains a NUL byte", ErrInvalidEnv, name)
		}
	}
	return nil
}

// ParseEnv decodes environment overrides from their JSON object form.
// An empty string yields an empty map.
func ParseEnv(raw string) (map[string]string, error) {
	env := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return env, nil
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: expect a JSON object of strings: %v", ErrInvalidEnv, err)
	}
	if err := ValidateEnv(env); err != nil {
		return nil, err
	}
	return env, nil
}

// ValidateCallback checks that a callback, when set, is an absolute http(s) URL.
func ValidateCallback(callback string) error {
	if callback == "" {
		return nil
	}
	u, err := url.Parse(callback)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidCallback, callback)
	}
	return nil
}
