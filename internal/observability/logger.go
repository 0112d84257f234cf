package observability

import (
	"net"

	"github.com/rs/zerolog"
)

// UnknownPeer is logged when a connection has no resolvable remote address.
const UnknownPeer = "unknown"

// PeerAddr returns a printable remote address for conn.
func PeerAddr(conn net.Conn) string {
	if conn == nil {
		return UnknownPeer
	}
	addr := conn.RemoteAddr()
	if addr == nil {
		return UnknownPeer
	}
	if s := addr.String(); s != "" {
		return s
	}
	return UnknownPeer
}

// ConnLogger scopes base to one connection.
func ConnLogger(base zerolog.Logger, connID, remote string) zerolog.Logger {
	return base.With().Str("conn_id", connID).Str("remote", remote).Logger()
}
