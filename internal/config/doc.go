// Package config loads and validates the trader's YAML configuration.
//
// Files may reference environment variables with ${VAR} syntax; they are
// expanded before parsing. Optional fields fall back to the Default* values.
package config
