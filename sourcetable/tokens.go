package sourcetable

import "fmt"

// tokenTable maps enum values to the tokens used in the sourcetable and back.
type tokenTable[T comparable] []struct {
	value T
	token string
}

func (table tokenTable[T]) token(value T) (string, bool) {
	for _, entry := range table {
		if entry.value == value {
			return entry.token, true
		}
	}
	return "", false
}

func (table tokenTable[T]) value(token string) (T, bool) {
	for _, entry := range table {
		if entry.token == token {
			return entry.value, true
		}
	}
	var zero T
	return zero, false
}

// Protocol is the data format of a mount.
type Protocol int

const (
	ProtocolRTCM3 Protocol = iota
	ProtocolRTCM30
	ProtocolRTCM32
	ProtocolRTCM33
	ProtocolRaw
	ProtocolCMRx
	ProtocolUnknown
)

var protocolTokens = tokenTable[Protocol]{
	{ProtocolRTCM3, "RTCM 3"},
	{ProtocolRTCM30, "RTCM 3.0"},
	{ProtocolRTCM32, "RTCM 3.2"},
	{ProtocolRTCM33, "RTCM 3.3"},
	{ProtocolRaw, "RAW"},
	{ProtocolCMRx, "CMRx"},
	{ProtocolUnknown, "UNKNOWN"},
}

// ParseProtocol returns the protocol given its sourcetable token.
func ParseProtocol(token string) (Protocol, bool) {
	return protocolTokens.value(token)
}

func (p Protocol) String() string {
	if token, ok := protocolTokens.token(p); ok {
		return token
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

func (p Protocol) MarshalText() ([]byte, error) {
	token, ok := protocolTokens.token(p)
	if !ok {
		return nil, fmt.Errorf("unknown protocol %d", int(p))
	}
	return []byte(token), nil
}

func (p *Protocol) UnmarshalText(text []byte) error {
	value, ok := ParseProtocol(string(text))
	if !ok {
		return fmt.Errorf("unknown protocol %q", text)
	}
	*p = value
	return nil
}

// Constellation is a satellite system carried by a mount.
type Constellation int

const (
	ConstellationGPS Constellation = iota
	ConstellationGLONASS
	ConstellationGalileo
	ConstellationBeidou
	ConstellationUnknown
)

var constellationTokens = tokenTable[Constellation]{
	{ConstellationGPS, "GPS"},
	{ConstellationGLONASS, "GLO"},
	{ConstellationGalileo, "GAL"},
	{ConstellationBeidou, "BDS"},
	{ConstellationUnknown, "UNKNOWN"},
}

// ParseConstellation returns the constellation given its sourcetable token.
func ParseConstellation(token string) (Constellation, bool) {
	return constellationTokens.value(token)
}

func (c Constellation) String() string {
	if token, ok := constellationTokens.token(c); ok {
		return token
	}
	return fmt.Sprintf("Constellation(%d)", int(c))
}

func (c Constellation) MarshalText() ([]byte, error) {
	token, ok := constellationTokens.token(c)
	if !ok {
		return nil, fmt.Errorf("unknown constellation %d", int(c))
	}
	return []byte(token), nil
}

func (c *Constellation) UnmarshalText(text []byte) error {
	value, ok := ParseConstellation(string(text))
	if !ok {
		return fmt.Errorf("unknown constellation %q", text)
	}
	*c = value
	return nil
}

// Network is the caster software or network that a mount belongs to.
type Network int

const (
	NetworkSNIP Network = iota
	NetworkUnknown
)

var networkTokens = tokenTable[Network]{
	{NetworkSNIP, "SNIP"},
	{NetworkUnknown, "UNKNOWN"},
}

// ParseNetwork returns the network given its sourcetable token.
func ParseNetwork(token string) (Network, bool) {
	return networkTokens.value(token)
}

func (n Network) String() string {
	if token, ok := networkTokens.token(n); ok {
		return token
	}
	return fmt.Sprintf("Network(%d)", int(n))
}

func (n Network) MarshalText() ([]byte, error) {
	token, ok := networkTokens.token(n)
	if !ok {
		return nil, fmt.Errorf("unknown network %d", int(n))
	}
	return []byte(token), nil
}

func (n *Network) UnmarshalText(text []byte) error {
	value, ok := ParseNetwork(string(text))
	if !ok {
		return fmt.Errorf("unknown network %q", text)
	}
	*n = value
	return nil
}
