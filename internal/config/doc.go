// Package config implements the Config Loader (C1): a viper-backed YAML
// configuration tree with environment-variable overrides, validated
// defaults, and optional hot reload on file change. Section names and
// recognized options follow spec §6; Manager's "apply defaults after
// unmarshal" step guards against an incomplete YAML section's zero values
// silently overriding viper's own defaults.
package config
