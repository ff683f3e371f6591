package networks

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	// EnvMnemonic holds the seed phrase used to derive signing keys.
	EnvMnemonic = "MNEMONIC"
	// EnvInfuraAPIKey holds the Infura project key.
	EnvInfuraAPIKey = "INFURA_API_KEY"
)

// Settings are the values the resolver reads from an Environment.
type Settings struct {
	Mnemonic     string `env:"MNEMONIC" envDefault:""`
	InfuraAPIKey string `env:"INFURA_API_KEY"`
}

// Environment is an immutable snapshot of environment variables.
type Environment struct {
	vars map[string]string
}

// FromMap copies m into a new Environment.
func FromMap(m map[string]string) Environment {
	vars := make(map[string]string, len(m))
	for k, v := range m {
		vars[k] = v
	}
	return Environment{vars: vars}
}

// FromOS snapshots the process environment.
func FromOS() Environment {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[key] = value
	}
	return Environment{vars: vars}
}

// LoadDotEnv snapshots the process environment and fills in keys from the
// given dotenv files. Variables already set in the process win, and missing
// files are skipped. With no paths, ".env" is tried.
func LoadDotEnv(paths ...string) (Environment, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	base := FromOS()
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Environment{}, fmt.Errorf("read dotenv %s: %w", path, err)
		}
		for k, v := range values {
			if _, ok := base.vars[k]; !ok {
				base.vars[k] = v
			}
		}
	}
	return base, nil
}

// Lookup returns the value for key and whether it was set.
func (e Environment) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Get returns the value for key, or def when unset or empty.
func (e Environment) Get(key, def string) string {
	if v, ok := e.vars[key]; ok && v != "" {
		return v
	}
	return def
}

// With returns a copy with key set to value.
func (e Environment) With(key, value string) Environment {
	next := FromMap(e.vars)
	next.vars[key] = value
	return next
}

// Settings decodes the resolver settings from the snapshot.
func (e Environment) Settings() (Settings, error) {
	vars := e.vars
	if vars == nil {
		// a nil map makes the decoder fall back to os.Environ
		vars = map[string]string{}
	}
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: vars}); err != nil {
		return Settings{}, fmt.Errorf("decode environment: %w", err)
	}
	return s, nil
}
