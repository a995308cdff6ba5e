// Package transport opens the duplex byte stream to an NTRIP caster: a plain
// TCP connection or, when the endpoint asks for it, TLS over TCP checked
// against the system trust roots.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/goblimey/go-ntrip-client/config"
)

// DefaultDialTimeout limits the time spent on DNS and the TCP connect when
// the context has no deadline of its own.
const DefaultDialTimeout = 30 * time.Second

// ConnectionError is returned when the connection cannot be made or fails
// later.  Op is "dial", "tls", "read" or "write".
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// InvalidNameError is returned when the host can't be used as the server
// name for TLS.
type InvalidNameError struct {
	Host string
	Err  error
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid TLS server name %q: %v", e.Host, e.Err)
}

func (e *InvalidNameError) Unwrap() error {
	return e.Err
}

// Options controls how the connection is made.  The zero value is ready
// to use.
type Options struct {
	// DialTimeout overrides DefaultDialTimeout.
	DialTimeout time.Duration
	// RootCAs replaces the system trust roots.
	RootCAs *x509.CertPool
}

// Open connects to the endpoint.  If the endpoint uses encryption, the TLS
// handshake is done before Open returns, with the host as the server name.
// The context bounds the whole of the connection process but not the life
// of the connection.
func Open(ctx context.Context, endpoint config.Endpoint, opts Options) (net.Conn, error) {
	addr := endpoint.Address()

	var serverName string
	if endpoint.UseEncryption {
		var err error
		serverName, err = ServerName(endpoint.Host)
		if err != nil {
			return nil, err
		}
	}

	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	if !endpoint.UseEncryption {
		return conn, nil
	}

	tlsConfig := &tls.Config{
		ServerName: serverName,
		RootCAs:    opts.RootCAs,
		MinVersion: tls.VersionTLS12,
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "tls", Addr: addr, Err: err}
	}

	return tlsConn, nil
}

// ServerName checks that host can be used as a TLS server name and returns
// it in the form that the certificate will carry.  IP addresses are
// accepted as they are.  DNS names are converted to their ASCII form.
func ServerName(host string) (string, error) {
	if host == "" {
		return "", &InvalidNameError{Host: host, Err: fmt.Errorf("empty host")}
	}

	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	name, err := idna.Lookup.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return "", &InvalidNameError{Host: host, Err: err}
	}

	return name, nil
}
