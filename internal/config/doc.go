// Package config loads notifier configuration from YAML files.
//
// Files may reference environment variables with ${VAR} syntax; they
// are expanded before parsing. Optional fields fall back to the
// defaults in defaults.go, and LoadAndValidate rejects configs that
// are missing required fields.
package config
