package ntrip

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/kylelemons/godebug/diff"

	"github.com/goblimey/go-ntrip-client/config"
	"github.com/goblimey/go-ntrip-client/transport"
)

var testEndpoint = config.Endpoint{Host: "caster.example.com", Port: 2101}

func TestBuildRequest(t *testing.T) {
	const want = "GET /VargaRTKhr HTTP/1.0\r\n" +
		"Host: caster.example.com:2101\r\n" +
		"Ntrip-Version: NTRIP/2.0\r\n" +
		"Accept: */*\r\n" +
		"Connection: close\r\n" +
		"User-Agent: NTRIP test/1.0\r\n" +
		"\r\n"

	got := BuildRequest(testEndpoint, "VargaRTKhr", config.Credentials{}, "NTRIP test/1.0")

	if d := diff.Diff(want, string(got)); d != "" {
		t.Error(d)
	}
}

func TestBuildRequestWithCredentials(t *testing.T) {
	const want = "GET /M1 HTTP/1.0\r\n" +
		"Host: caster.example.com:2101\r\n" +
		"Ntrip-Version: NTRIP/2.0\r\n" +
		"Accept: */*\r\n" +
		"Connection: close\r\n" +
		"User-Agent: NTRIP test/1.0\r\n" +
		"Authorization: Basic dXNlcjpwYXNz\r\n" +
		"\r\n"

	creds := config.NewCredentials("user").WithPassword("pass")
	got := BuildRequest(testEndpoint, "/M1", creds, "NTRIP test/1.0")

	if d := diff.Diff(want, string(got)); d != "" {
		t.Error(d)
	}
}

// TestBuildRequestForSourcetable checks the request for the sourcetable,
// which has an empty mount.
func TestBuildRequestForSourcetable(t *testing.T) {
	got := BuildRequest(testEndpoint, "", config.Credentials{}, DefaultUserAgent())
	want := "GET / HTTP/1.0\r\n"
	if !bytes.HasPrefix(got, []byte(want)) {
		t.Errorf("want prefix %q, got %q", want, got)
	}
	if !bytes.Contains(got, []byte("User-Agent: NTRIP go-ntrip-client/"+Version+"\r\n")) {
		t.Errorf("default user agent missing from %q", got)
	}
}

// fakeConn is an io.ReadWriter that records what is written and returns
// the given response.
type fakeConn struct {
	written  bytes.Buffer
	response io.Reader
}

func (f *fakeConn) Write(p []byte) (int, error) {
	return f.written.Write(p)
}

func (f *fakeConn) Read(p []byte) (int, error) {
	return f.response.Read(p)
}

// failingReader fails every read.
type failingReader struct{ err error }

func (r failingReader) Read(p []byte) (int, error) {
	return 0, r.err
}

func TestPerformHandshake(t *testing.T) {
	var testData = []struct {
		description string
		response    string
	}{
		{"NTRIP v2", "HTTP/1.1 200 OK\r\nNtrip-Version: Ntrip/2.0\r\n\r\n\xd3\x00"},
		{"NTRIP v1", "ICY 200 OK\r\n\xd3\x00\x13"},
		{"sourcetable", "SOURCETABLE 200 OK\r\nServer: NTRIP SNIP/2.0\r\n"},
		{"no line ending", "HTTP/1.0 200 OK"},
	}

	for _, td := range testData {
		conn := &fakeConn{response: bytes.NewReader([]byte(td.response))}

		got, err := PerformHandshake(conn, testEndpoint, "M1", config.Credentials{}, "NTRIP test/1.0")
		if err != nil {
			t.Errorf("%s: %v", td.description, err)
			continue
		}

		if string(got) != td.response {
			t.Errorf("%s: want %q got %q", td.description, td.response, got)
		}

		want := BuildRequest(testEndpoint, "M1", config.Credentials{}, "NTRIP test/1.0")
		if !bytes.Equal(want, conn.written.Bytes()) {
			t.Errorf("%s: request not sent, got %q", td.description, conn.written.Bytes())
		}
	}
}

func TestPerformHandshakeRejected(t *testing.T) {
	var testData = []struct {
		description string
		response    io.Reader
		wantStatus  string
	}{
		{"unauthorised", bytes.NewReader([]byte("HTTP/1.1 401 Unauthorized\r\n\r\n")), "HTTP/1.1 401 Unauthorized"},
		{"not found", bytes.NewReader([]byte("ERROR - Bad Password\r\n")), "ERROR - Bad Password"},
		{"empty", bytes.NewReader(nil), "empty response"},
	}

	for _, td := range testData {
		conn := &fakeConn{response: td.response}

		_, err := PerformHandshake(conn, testEndpoint, "M1", config.Credentials{}, "NTRIP test/1.0")

		var responseError *ResponseError
		if !errors.As(err, &responseError) {
			t.Errorf("%s: want ResponseError, got %v", td.description, err)
			continue
		}
		if responseError.Status != td.wantStatus {
			t.Errorf("%s: want status %q, got %q", td.description, td.wantStatus, responseError.Status)
		}
	}
}

func TestPerformHandshakeReadFailure(t *testing.T) {
	conn := &fakeConn{response: failingReader{err: errors.New("connection reset")}}

	_, err := PerformHandshake(conn, testEndpoint, "M1", config.Credentials{}, "NTRIP test/1.0")

	var connectionError *transport.ConnectionError
	if !errors.As(err, &connectionError) {
		t.Fatalf("want ConnectionError, got %v", err)
	}
	if connectionError.Op != "read" {
		t.Errorf("want op read, got %s", connectionError.Op)
	}
}
