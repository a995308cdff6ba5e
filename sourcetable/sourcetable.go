// Package sourcetable parses the sourcetable that an NTRIP caster returns
// when asked for its list of mounts, and finds the mount nearest to a
// position.
//
// A sourcetable is a short set of HTTP-style header lines followed by one
// line per record.  Mount records start with "STR;" and hold semicolon
// separated fields:
//
//	STR;VargaRTKhr;Is near: Zagreb, Zagreb;RTCM 3.2;1006(1),1033(1);;GPS+GLO+GAL+BDS;SNIP;HRV;46.44;16.50;...
//
// Only the first eleven fields are used.  Parsing never fails: lines that
// are not understood are skipped and fields that can't be parsed take a
// default value.
package sourcetable

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/biter777/countries"
)

// EndOfSourcetable is the line that ends the sourcetable.
const EndOfSourcetable = "ENDSOURCETABLE"

// Header prefixes recognised in the sourcetable.
const (
	serverPrefix        = "Server: "
	datePrefix          = "Date: "
	contentTypePrefix   = "Content-Type: "
	contentLengthPrefix = "Content-Length: "
	mountPrefix         = "STR;"
)

// ServerInfo is the parsed sourcetable.  The header values are nil when the
// sourcetable doesn't carry them.
type ServerInfo struct {
	Server        *string     `json:"server,omitempty" yaml:"server,omitempty"`
	Date          *string     `json:"date,omitempty" yaml:"date,omitempty"`
	ContentType   *string     `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	ContentLength *uint64     `json:"content_length,omitempty" yaml:"content_length,omitempty"`
	Mounts        []MountInfo `json:"mounts" yaml:"mounts"`

	// SkippedLines counts the STR lines that could not be used.
	SkippedLines int `json:"-" yaml:"-"`
}

// Location is a position in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// MountInfo describes one mount.
type MountInfo struct {
	Name           string          `json:"name" yaml:"name"`
	Details        string          `json:"details" yaml:"details"`
	Protocol       Protocol        `json:"protocol" yaml:"protocol"`
	Messages       []string        `json:"messages" yaml:"messages"`
	Constellations []Constellation `json:"constellations" yaml:"constellations"`
	Network        Network         `json:"network" yaml:"network"`
	// Country is countries.Unknown when the sourcetable doesn't give a
	// recognised ISO 3166 alpha-3 code.
	Country  countries.CountryCode `json:"-" yaml:"-"`
	Location Location              `json:"location" yaml:"location"`
}

// HasCountry is true if the mount has a recognised country.
func (m *MountInfo) HasCountry() bool {
	return m.Country != countries.Unknown
}

// CountryCode returns the alpha-3 country code or "" if there isn't one.
func (m *MountInfo) CountryCode() string {
	if !m.HasCountry() {
		return ""
	}
	return m.Country.Alpha3()
}

// Parse builds a ServerInfo from the lines of a sourcetable.  Lines that
// are neither recognised headers nor usable mount records are ignored.
func Parse(lines []string) *ServerInfo {
	info := &ServerInfo{Mounts: make([]MountInfo, 0)}
	for _, line := range lines {
		info.addLine(line)
	}
	return info
}

// ParseReader reads a sourcetable up to the ENDSOURCETABLE line or the end
// of the input and parses it.  The error is any error from the reader.
func ParseReader(r io.Reader) (*ServerInfo, error) {
	info := &ServerInfo{Mounts: make([]MountInfo, 0)}

	scanner := bufio.NewScanner(r)
	// Some mount lines are long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == EndOfSourcetable {
			break
		}
		info.addLine(line)
	}

	return info, scanner.Err()
}

// addLine handles one line of the sourcetable.
func (info *ServerInfo) addLine(line string) {
	switch {
	case strings.HasPrefix(line, serverPrefix):
		v := strings.TrimPrefix(line, serverPrefix)
		info.Server = &v
	case strings.HasPrefix(line, datePrefix):
		v := strings.TrimPrefix(line, datePrefix)
		info.Date = &v
	case strings.HasPrefix(line, contentTypePrefix):
		v := strings.TrimPrefix(line, contentTypePrefix)
		info.ContentType = &v
	case strings.HasPrefix(line, contentLengthPrefix):
		n, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, contentLengthPrefix)), 10, 64)
		if err == nil {
			info.ContentLength = &n
		}
	case strings.HasPrefix(line, mountPrefix):
		mount, ok := ParseMount(line)
		if !ok {
			info.SkippedLines++
			return
		}
		info.Mounts = append(info.Mounts, mount)
	}
}

// ParseMount parses one STR line.  It returns false if the line is not a
// mount record or lacks a name and details.
func ParseMount(line string) (MountInfo, bool) {
	parts := strings.Split(line, ";")
	if len(parts) < 3 || parts[0] != "STR" {
		return MountInfo{}, false
	}

	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	mount := MountInfo{
		Name:           parts[1],
		Details:        strings.TrimSpace(parts[2]),
		Protocol:       ProtocolRaw,
		Messages:       make([]string, 0),
		Constellations: make([]Constellation, 0),
		Network:        NetworkUnknown,
		Country:        countries.Unknown,
	}

	if p, ok := ParseProtocol(field(3)); ok {
		mount.Protocol = p
	}

	if messages := field(4); messages != "" {
		for _, m := range strings.Split(messages, ",") {
			mount.Messages = append(mount.Messages, strings.TrimSpace(m))
		}
	}

	// Field 5 is the carrier phase flag, which is not used.

	if constellations := field(6); constellations != "" {
		for _, token := range strings.Split(constellations, "+") {
			c, ok := ParseConstellation(token)
			if !ok {
				c = ConstellationUnknown
			}
			mount.Constellations = append(mount.Constellations, c)
		}
	}

	if n, ok := ParseNetwork(field(7)); ok {
		mount.Network = n
	}

	mount.Country = parseCountry(field(8))

	mount.Location.Latitude = parseCoordinate(field(9))
	mount.Location.Longitude = parseCoordinate(field(10))

	return mount, true
}

// parseCountry returns the country given its ISO 3166 alpha-3 code, or
// countries.Unknown.
func parseCountry(code string) countries.CountryCode {
	if len(code) != 3 {
		return countries.Unknown
	}
	// ByName also accepts names and alpha-2 codes, so check that
	// what we got back really has this alpha-3 code.
	country := countries.ByName(code)
	if country == countries.Unknown || !strings.EqualFold(country.Alpha3(), code) {
		return countries.Unknown
	}
	return country
}

// parseCoordinate returns the value in decimal degrees, or 0 if it's not
// a number.
func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
