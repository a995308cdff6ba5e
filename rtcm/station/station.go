// Package station decodes RTCM3 message types 1005 and 1006, which give the
// position of the reference station's antenna in Earth-centred Earth-fixed
// (ECEF) coordinates.  Type 1006 adds the height of the antenna above the
// marker.
//
// A caster's sourcetable gives each mount's position to two decimal places
// at best.  These messages give it to a tenth of a millimetre.
package station

import (
	"errors"
	"fmt"
	"math"

	"github.com/goblimey/go-ntrip-client/rtcm/handler"
	"github.com/goblimey/go-ntrip-client/rtcm/utils"
)

// Lengths of the fields in the bit stream.
const (
	lenMessageType         = 12
	lenStationID           = 12
	lenITRFRealisationYear = 6
	lenIgnoredBits1        = 4
	lenAntennaRef          = 38
	lenIgnoredBits2        = 2
	lenAntennaHeight       = 16
)

const bitsIn1005 = lenMessageType + lenStationID + lenITRFRealisationYear + lenIgnoredBits1 +
	3*lenAntennaRef + 2*lenIgnoredBits2

const bitsIn1006 = bitsIn1005 + lenAntennaHeight

// scaleFactor converts the coordinates and the antenna height, which are in
// units of 0.1 mm, to metres.
const scaleFactor = 0.0001

// WGS84 ellipsoid.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1 / 298.257223563
)

// ErrNotStationMessage is returned for messages other than 1005 and 1006.
var ErrNotStationMessage = errors.New("not a station position message")

// Position is the content of a message of type 1005 or 1006.
type Position struct {
	MessageType         int     `json:"message_type" yaml:"message_type"`
	StationID           uint    `json:"station_id" yaml:"station_id"`
	ITRFRealisationYear uint    `json:"itrf_realisation_year" yaml:"itrf_realisation_year"`
	X                   float64 `json:"x" yaml:"x"`
	Y                   float64 `json:"y" yaml:"y"`
	Z                   float64 `json:"z" yaml:"z"`
	// AntennaHeight is zero for a type 1005 message.
	AntennaHeight float64 `json:"antenna_height" yaml:"antenna_height"`
}

// IsStationMessage is true for the message types that Decode handles.
func IsStationMessage(messageType int) bool {
	return messageType == utils.MessageType1005 || messageType == utils.MessageType1006
}

// Decode extracts the station position from a message.
func Decode(message *handler.Message) (*Position, error) {
	if !IsStationMessage(message.MessageType) {
		return nil, fmt.Errorf("%w: type %d", ErrNotStationMessage, message.MessageType)
	}

	want := bitsIn1005
	if message.MessageType == utils.MessageType1006 {
		want = bitsIn1006
	}
	if got := message.Length() * 8; got < want {
		return nil, fmt.Errorf("overrun - expected %d bits in a message type %d, got %d",
			want, message.MessageType, got)
	}

	bitStream := message.RawData

	// Skip the leader and the message type.
	var pos uint = utils.LeaderLengthBits + lenMessageType

	p := Position{MessageType: message.MessageType}

	p.StationID = uint(utils.GetBitsAsUint64(bitStream, pos, lenStationID))
	pos += lenStationID
	p.ITRFRealisationYear = uint(utils.GetBitsAsUint64(bitStream, pos, lenITRFRealisationYear))
	pos += lenITRFRealisationYear + lenIgnoredBits1

	p.X = float64(utils.GetBitsAsInt64(bitStream, pos, lenAntennaRef)) * scaleFactor
	pos += lenAntennaRef + lenIgnoredBits2
	p.Y = float64(utils.GetBitsAsInt64(bitStream, pos, lenAntennaRef)) * scaleFactor
	pos += lenAntennaRef + lenIgnoredBits2
	p.Z = float64(utils.GetBitsAsInt64(bitStream, pos, lenAntennaRef)) * scaleFactor
	pos += lenAntennaRef

	if message.MessageType == utils.MessageType1006 {
		p.AntennaHeight = float64(utils.GetBitsAsUint64(bitStream, pos, lenAntennaHeight)) * scaleFactor
	}

	return &p, nil
}

// Geodetic converts the ECEF position to WGS84 latitude and longitude in
// decimal degrees and the height above the ellipsoid in metres.
func (p *Position) Geodetic() (latitude, longitude, height float64) {
	e2 := flattening * (2 - flattening)

	longitude = math.Atan2(p.Y, p.X)
	r := math.Hypot(p.X, p.Y)

	if r < 1e-9 {
		// On the polar axis.
		semiMinorAxis := semiMajorAxis * (1 - flattening)
		latitude = math.Copysign(math.Pi/2, p.Z)
		return radiansToDegrees(latitude), 0, math.Abs(p.Z) - semiMinorAxis
	}

	latitude = math.Atan2(p.Z, r*(1-e2))
	for i := 0; i < 6; i++ {
		sinLat := math.Sin(latitude)
		n := semiMajorAxis / math.Sqrt(1-e2*sinLat*sinLat)
		height = r/math.Cos(latitude) - n
		latitude = math.Atan2(p.Z, r*(1-e2*n/(n+height)))
	}

	return radiansToDegrees(latitude), radiansToDegrees(longitude), height
}

// String returns a readable version of the position.
func (p *Position) String() string {
	latitude, longitude, height := p.Geodetic()
	display := fmt.Sprintf("station %d, ITRF realisation year %d, ECEF (%.4f, %.4f, %.4f), lat %.7f lon %.7f height %.3f",
		p.StationID, p.ITRFRealisationYear, p.X, p.Y, p.Z, latitude, longitude, height)
	if p.MessageType == utils.MessageType1006 {
		display += fmt.Sprintf(", antenna height %.4f", p.AntennaHeight)
	}
	return display
}

func radiansToDegrees(r float64) float64 {
	return r * 180 / math.Pi
}
