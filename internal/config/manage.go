package config

import (
	"fmt"
	"os"
	"strconv"
)

// Where a displayed value came from.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string `json:"key"`
	EnvVar string `json:"env"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// ShowAll lists every non-secret key with its effective value in cfg and
// the layer that set it.
func ShowAll(cfg Config) []KeyInfo {
	return showAll(cfg, newPlatformBackend())
}

func showAll(cfg Config, b ConfigBackend) []KeyInfo {
	var out []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		out = append(out, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprint(s.extract(cfg)),
			Source: keySource(s, b),
		})
	}
	return out
}

func keySource(s keySpec, b ConfigBackend) string {
	if os.Getenv(s.env) != "" {
		return SourceEnv
	}
	var ok bool
	if s.typ == kInt {
		_, ok, _ = b.GetInt(s.key)
	} else {
		_, ok, _ = b.GetString(s.key)
	}
	if ok {
		return SourceFile
	}
	return SourceDefault
}

// SetKey validates value against the key's type and writes it to the
// config file.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, err := lookupSpec(key)
	if err != nil {
		return err
	}
	if s.typ == kInt {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, n)
	}
	if _, err := parseValue(s.typ, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return b.SetString(key, value)
}

// UnsetKey removes a key from the config file so the default applies again.
func UnsetKey(key string) error {
	return unsetKey(newPlatformBackend(), key)
}

func unsetKey(b ConfigBackend, key string) error {
	if _, err := lookupSpec(key); err != nil {
		return err
	}
	return b.Delete(key)
}

func lookupSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
