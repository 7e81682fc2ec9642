package config

import (
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	"github.com/drblury/kafkaport/internal/runtime/jsoncodec"
	"github.com/drblury/kafkaport/internal/runtime/term"
)

// ParseEnv loads Settings from environment variables.
func ParseEnv() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// DecodeStartupArg decodes the argument the owning Erlang process passes when
// opening the port: base64 of term_to_binary([Properties | _]). A bare map is
// accepted as well.
func DecodeStartupArg(arg string) (Properties, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("startup argument: %w", err)
	}
	t, err := term.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("startup argument: %w", err)
	}

	if list, ok := t.(term.List); ok {
		if len(list) == 0 {
			return nil, errspkg.ErrPropertiesRequired
		}
		t = list[0]
	}
	m, err := term.ToMap(t)
	if err != nil {
		return nil, fmt.Errorf("startup argument: %w", err)
	}
	return PropertiesFromTerm(m)
}

// PropertiesFromTerm converts a decoded property map. Keys may be atoms,
// binaries or charlists; values must be scalars.
func PropertiesFromTerm(m term.Map) (Properties, error) {
	props := make(Properties, len(m))
	for _, pair := range m {
		key, err := term.ToString(pair.Key)
		if err != nil {
			return nil, fmt.Errorf("property key: %w", err)
		}
		value, err := term.ToScalar(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", key, err)
		}
		props[key] = value
	}
	return props, nil
}

// LoadPropertiesFile reads a JSON object of properties. JSON null values are
// kept here and discarded by New like any other null.
func LoadPropertiesFile(path string) (Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("properties file: %w", err)
	}
	defer f.Close()

	var raw map[string]any
	if err := jsoncodec.Decode(f, &raw); err != nil {
		return nil, fmt.Errorf("properties file %s: %w", path, err)
	}
	if raw == nil {
		return nil, errspkg.ErrPropertiesRequired
	}

	props := make(Properties, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil, string, bool:
			props[k] = x
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				props[k] = int64(x)
			} else {
				props[k] = x
			}
		default:
			return nil, fmt.Errorf("properties file %s: %s must be a scalar, got %T", path, k, v)
		}
	}
	return props, nil
}
