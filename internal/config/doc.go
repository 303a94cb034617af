// Package config defines configuration structures for the era5dl CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (ERA5DL_ prefix)
//   - YAML configuration file
//
// Precedence is flags over environment over file over defaults.
// API credentials live in a separate YAML file ("keys" list) so the
// run configuration can be committed without secrets.
package config
