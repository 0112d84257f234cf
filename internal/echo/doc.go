// Package echo owns the framed echo server.
//
// Ownership boundary:
// - accept loop and per-connection goroutines
// - per-connection frame state machine
// - response production (Responder)
// - bounded connection outcome history
// - optional admin HTTP surface (health, metrics, history)
//
// Connection lifecycle:
// - awaiting_header -> awaiting_body -> processing -> awaiting_write_header -> awaiting_write_body -> awaiting_header
//
// - closed on end-of-stream at a frame boundary, aborted on any other failure.
//
// Connections share no mutable state beyond the immutable ServiceConfig.
package echo
