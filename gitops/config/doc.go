// Package config loads the promotion settings from an optional YAML file.
// Values not present in the file keep their Default. Secrets never live in
// the file; the entry point supplies them separately.
package config
