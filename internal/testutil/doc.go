// Package testutil provides deterministic fixtures for tests and scenarios:
// Ed25519 keys derived from names, and sequential trace IDs.
package testutil
