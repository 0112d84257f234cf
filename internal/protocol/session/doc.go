// Package session owns stream transport settings shared by the echo server
// and client.
//
// Ownership boundary:
// - connect/read/write timeouts
// - retry/backoff primitives
// - TLS validation and tls.Config builders
package session
