// Package protocol owns the wire contract shared by server and client.
//
// Ownership boundary:
// - length-prefixed frame primitives (frame)
// - error taxonomy for connection outcomes (Kind, Classify)
//
// Wire format:
//
//	Frame := LengthPrefix(4 bytes, little-endian u32) || Payload(LengthPrefix bytes, UTF-8 text)
package protocol
