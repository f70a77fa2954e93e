// Package config loads, normalizes, and validates agilentuimf configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// AGILENTUIMF_CONVERTER and AGILENTUIMF_REMOTE_ROOT. The Config type doubles as
// the task-parameter provider for a conversion: working directory, remote
// storage root, converter location, and debug verbosity are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
