// Package config loads processor configuration from vaultguard.yaml and
// VAULTGUARD_* environment variables, and validates it against an embedded
// CUE schema before anything is opened or derived.
package config
