// Package config loads, normalizes, and validates the TOML configuration and
// the YAML source list that drives discovery.
package config
