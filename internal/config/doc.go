// Package config loads the chaindeploy daemon and CLI configuration from a
// JSON or YAML file with CHAINDEPLOY_ environment overrides.
package config
