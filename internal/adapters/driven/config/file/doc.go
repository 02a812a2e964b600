// Package file provides file-based configuration adapters.
//
// Files:
//   - config.toml: application configuration (Config, ConfigStore)
//   - index description YAML: domains and sources for `shelby index apply`
//   - .env: secrets loaded into the environment
package file
