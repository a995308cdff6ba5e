// Package config holds the values that say where an NTRIP caster is and who
// is connecting to it: the Endpoint, the Credentials, the table of well-known
// providers and the config file that ties them together.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the usual NTRIP caster port.
const DefaultPort uint16 = 2101

// DefaultTLSPort is the port used by casters that only accept TLS.
const DefaultTLSPort uint16 = 443

// ErrInvalidURL is returned when a caster address cannot be parsed.
var ErrInvalidURL = errors.New("invalid caster URL")

// ErrInvalidPort is returned when the port in a caster address is not a
// number between 1 and 65535.
var ErrInvalidPort = errors.New("invalid port number")

// Endpoint says where an NTRIP caster is and whether to use TLS to reach it.
// It's a value: the With methods return a modified copy.
type Endpoint struct {
	Host          string `json:"host" yaml:"host"`
	Port          uint16 `json:"port" yaml:"port"`
	UseEncryption bool   `json:"use_tls" yaml:"use_tls"`
}

// WithHost returns a copy of the endpoint with the host replaced.
func (e Endpoint) WithHost(host string) Endpoint {
	e.Host = host
	return e
}

// WithPort returns a copy of the endpoint with the port replaced.
func (e Endpoint) WithPort(port uint16) Endpoint {
	e.Port = port
	return e
}

// WithEncryption returns a copy of the endpoint with TLS switched on or off.
func (e Endpoint) WithEncryption(useEncryption bool) Endpoint {
	e.UseEncryption = useEncryption
	return e
}

// Address returns the endpoint as host:port, suitable for dialling and for
// the Host header.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// String returns the endpoint as a URL.
func (e Endpoint) String() string {
	scheme := "http"
	if e.UseEncryption {
		scheme = "https"
	}
	return scheme + "://" + e.Address()
}

// Provider is a well-known caster.
type Provider struct {
	Name        string
	Description string
	Endpoint    Endpoint
}

// providers is the fixed table of well-known casters.
var providers = []Provider{
	{
		Name:        "linz",
		Description: "Land Information New Zealand PositioNZ",
		Endpoint:    Endpoint{Host: "positionz-rt.linz.govt.nz", Port: 2101},
	},
	{
		Name:        "rtk2go",
		Description: "RTK2go community caster",
		Endpoint:    Endpoint{Host: "rtk2go.com", Port: 2101},
	},
	{
		Name:        "posau",
		Description: "Geoscience Australia Positioning Australia",
		Endpoint:    Endpoint{Host: "ntrip.data.gnss.ga.gov.au", Port: 443, UseEncryption: true},
	},
	{
		Name:        "centipede",
		Description: "Centipede RTK network, France",
		Endpoint:    Endpoint{Host: "caster.centipede.fr", Port: 2101},
	},
}

// Providers returns the table of well-known casters.
func Providers() []Provider {
	result := make([]Provider, len(providers))
	copy(result, providers)
	return result
}

// LookupProvider returns the endpoint of the named provider.
func LookupProvider(name string) (Endpoint, bool) {
	for _, p := range providers {
		if p.Name == name {
			return p.Endpoint, true
		}
	}
	return Endpoint{}, false
}

// ParseEndpoint turns a provider name or a URL-like string into an Endpoint.
// Accepted forms are a provider name ("rtk2go"), "host", "host:port" and
// either of those prefixed with http://, https:// or ntrip://.  Anything
// after the host and port is ignored.  The port defaults to 443 for https
// and 2101 otherwise.  TLS is used for https and for port 443.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)

	if e, ok := LookupProvider(s); ok {
		return e, nil
	}

	scheme := ""
	rest := s
	if i := strings.Index(s, "://"); i >= 0 {
		scheme = strings.ToLower(s[:i])
		rest = s[i+3:]
		switch scheme {
		case "http", "https", "ntrip":
		default:
			return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q in %q", ErrInvalidURL, scheme, s)
		}
	}

	// Drop any path.
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}

	host := rest
	portString := ""
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		host = rest[:i]
		portString = rest[i+1:]
		if portString == "" {
			return Endpoint{}, fmt.Errorf("%w: empty port in %q", ErrInvalidPort, s)
		}
	}

	if host == "" || strings.ContainsAny(host, " \t:@") {
		return Endpoint{}, fmt.Errorf("%w: no valid host in %q", ErrInvalidURL, s)
	}

	port := DefaultPort
	if scheme == "https" {
		port = DefaultTLSPort
	}
	if portString != "" {
		p, err := strconv.ParseUint(portString, 10, 16)
		if err != nil || p == 0 {
			return Endpoint{}, fmt.Errorf("%w: %q in %q", ErrInvalidPort, portString, s)
		}
		port = uint16(p)
	}

	e := Endpoint{
		Host:          host,
		Port:          port,
		UseEncryption: scheme == "https" || port == DefaultTLSPort,
	}

	return e, nil
}
