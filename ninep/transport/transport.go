// Package transport resolves "scheme!address" strings to network
// connections, the way the engine's original socket layer resolved
// dial/announce strings through a registry of schemes (unix, tcp, and a
// debug scheme that always logs and fails).
package transport

import (
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// Dialer opens an outbound connection to addr, the part of the address
// string after the scheme and its separating '!'.
type Dialer func(addr string) (net.Conn, error)

// Announcer starts listening for inbound connections on addr.
type Announcer func(addr string) (net.Listener, error)

type scheme struct {
	dial     Dialer
	announce Announcer
}

var schemes = map[string]scheme{}

// Register adds or replaces the dial/announce handlers for a scheme
// name. Either handler may be nil if the scheme only supports one
// direction.
func Register(name string, d Dialer, a Announcer) {
	schemes[name] = scheme{dial: d, announce: a}
}

func init() {
	Register("tcp", dialTCP, announceTCP)
	Register("unix", dialUnix, announceUnix)
	Register("debug", dialDebug, announceDebug)
}

// decompose splits "scheme!rest" into its scheme and remainder, the way
// the original Connection::decompose split on the first '!'.
func decompose(address string) (scheme, rest string, err error) {
	i := strings.IndexByte(address, '!')
	if i < 0 {
		return "", "", fmt.Errorf("ninep/transport: malformed address %q: missing scheme separator", address)
	}
	return address[:i], address[i+1:], nil
}

// Dial connects to "scheme!address", e.g. "tcp!localhost!564" or
// "unix!/tmp/ninep.sock".
func Dial(address string) (net.Conn, error) {
	name, rest, err := decompose(address)
	if err != nil {
		return nil, err
	}
	s, ok := schemes[name]
	if !ok || s.dial == nil {
		return nil, fmt.Errorf("ninep/transport: no dialer registered for scheme %q", name)
	}
	return s.dial(rest)
}

// Announce starts listening on "scheme!address". The host part of a tcp
// address may be "*" to mean "bind all interfaces"; a unix path is used
// as given.
func Announce(address string) (net.Listener, error) {
	name, rest, err := decompose(address)
	if err != nil {
		return nil, err
	}
	s, ok := schemes[name]
	if !ok || s.announce == nil {
		return nil, fmt.Errorf("ninep/transport: no announcer registered for scheme %q", name)
	}
	return s.announce(rest)
}

func splitHostPort(rest string) (network string, addr string) {
	parts := strings.Split(rest, "!")
	host := parts[0]
	if host == "*" {
		host = ""
	}
	if len(parts) > 1 {
		return "tcp", host + ":" + parts[1]
	}
	return "tcp", host
}

func dialTCP(rest string) (net.Conn, error) {
	_, addr := splitHostPort(rest)
	return net.Dial("tcp", addr)
}

func announceTCP(rest string) (net.Listener, error) {
	_, addr := splitHostPort(rest)
	return net.Listen("tcp", addr)
}

func dialUnix(rest string) (net.Conn, error) {
	return net.Dial("unix", rest)
}

func announceUnix(rest string) (net.Listener, error) {
	return net.Listen("unix", rest)
}

// debugLogger is the fallback logger used by the debug scheme when no
// application logger has been installed via SetDebugLogger.
var debugLogger = zap.NewNop()

// SetDebugLogger directs the debug scheme's trace output through l.
func SetDebugLogger(l *zap.Logger) {
	debugLogger = l
}

func dialDebug(rest string) (net.Conn, error) {
	debugLogger.Info("dial address", zap.String("address", rest))
	return nil, fmt.Errorf("ninep/transport: debug scheme always fails to dial")
}

func announceDebug(rest string) (net.Listener, error) {
	debugLogger.Info("announce address", zap.String("address", rest))
	return nil, fmt.Errorf("ninep/transport: debug scheme always fails to announce")
}
