package station

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goblimey/go-ntrip-client/rtcm/handler"
)

// bitWriter packs fields into a message body, most significant bit first.
type bitWriter struct {
	body []byte
	pos  uint
}

func (w *bitWriter) put(value int64, length uint) {
	for i := int(length) - 1; i >= 0; i-- {
		if w.pos/8 >= uint(len(w.body)) {
			w.body = append(w.body, 0)
		}
		if (uint64(value)>>uint(i))&1 == 1 {
			w.body[w.pos/8] |= 0x80 >> (w.pos % 8)
		}
		w.pos++
	}
}

// makeMessage builds a framed message of type 1005 or 1006.  x, y, z and
// height are in units of 0.1 mm.
func makeMessage(t *testing.T, messageType int, stationID, year int64, x, y, z, height int64) *handler.Message {
	t.Helper()
	var w bitWriter
	w.put(int64(messageType), 12)
	w.put(stationID, 12)
	w.put(year, 6)
	w.put(0xf, 4)
	w.put(x, 38)
	w.put(1, 2)
	w.put(y, 38)
	w.put(2, 2)
	w.put(z, 38)
	if messageType == 1006 {
		w.put(height, 16)
	}
	frame, err := handler.EncodeFrame(w.body)
	if err != nil {
		t.Fatal(err)
	}
	return &handler.Message{MessageType: messageType, RawData: frame}
}

func TestDecode1005(t *testing.T) {
	message := makeMessage(t, 1005, 2, 3, 123456, -234567, 345678, 0)

	got, err := Decode(message)
	if err != nil {
		t.Fatal(err)
	}

	want := &Position{MessageType: 1005, StationID: 2, ITRFRealisationYear: 3,
		X: 12.3456, Y: -23.4567, Z: 34.5678}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Error(diff)
	}
}

func TestDecode1006(t *testing.T) {
	// Zagreb, roughly.
	message := makeMessage(t, 1006, 4095, 0, 42741250000, 12254290000, 45506210000, 15000)

	got, err := Decode(message)
	if err != nil {
		t.Fatal(err)
	}

	if got.StationID != 4095 || math.Abs(got.AntennaHeight-1.5) > 1e-9 {
		t.Errorf("unexpected position %+v", got)
	}
	if !strings.HasSuffix(got.String(), "antenna height 1.5000") {
		t.Errorf("unexpected display %q", got.String())
	}
}

func TestDecodeErrors(t *testing.T) {
	frame, err := handler.EncodeFrame(handler.EncodeMessageType(1005, 10))
	if err != nil {
		t.Fatal(err)
	}
	short := &handler.Message{MessageType: 1005, RawData: frame}
	const wantShort = "overrun - expected 152 bits in a message type 1005, got 80"
	if _, err := Decode(short); err == nil || err.Error() != wantShort {
		t.Errorf("want %s got %v", wantShort, err)
	}

	msm := &handler.Message{MessageType: 1077, RawData: frame}
	if _, err := Decode(msm); !errors.Is(err, ErrNotStationMessage) {
		t.Errorf("want %v got %v", ErrNotStationMessage, err)
	}
}

// toECEF is the forward conversion, used to check Geodetic.
func toECEF(latitude, longitude, height float64) (x, y, z float64) {
	e2 := flattening * (2 - flattening)
	lat := latitude * math.Pi / 180
	lon := longitude * math.Pi / 180
	n := semiMajorAxis / math.Sqrt(1-e2*math.Sin(lat)*math.Sin(lat))
	x = (n + height) * math.Cos(lat) * math.Cos(lon)
	y = (n + height) * math.Cos(lat) * math.Sin(lon)
	z = (n*(1-e2) + height) * math.Sin(lat)
	return x, y, z
}

func TestGeodetic(t *testing.T) {
	var testData = []struct {
		latitude, longitude, height float64
	}{
		{0, 0, 0},
		{45.8, 16.0, 120.5},
		{-36.85, 174.76, 30},
		{-33.9, -70.6, 600},
		{89.9, 10, 0},
	}

	for _, td := range testData {
		x, y, z := toECEF(td.latitude, td.longitude, td.height)
		p := Position{X: x, Y: y, Z: z}
		latitude, longitude, height := p.Geodetic()
		if math.Abs(latitude-td.latitude) > 1e-8 ||
			math.Abs(longitude-td.longitude) > 1e-8 ||
			math.Abs(height-td.height) > 1e-3 {
			t.Errorf("%v: got %f %f %f", td, latitude, longitude, height)
		}
	}
}

func TestGeodeticPole(t *testing.T) {
	p := Position{Z: -6356752.3142 - 10}
	latitude, _, height := p.Geodetic()
	if math.Abs(latitude+90) > 1e-12 || math.Abs(height-10) > 1e-3 {
		t.Errorf("got %f %f", latitude, height)
	}
}
