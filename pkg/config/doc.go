// Package config loads service configuration from built-in defaults, an
// optional YAML file (ANDOBILL_CONFIG_FILE) and ANDOBILL_* environment
// variables, in that order of precedence.
package config
