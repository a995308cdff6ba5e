package ntrip

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goblimey/go-ntrip-client/config"
	"github.com/goblimey/go-ntrip-client/transport"
)

// Product is the name sent in the User-Agent header.  Casters such as
// RTK2go expect the agent to start with "NTRIP".
const Product = "NTRIP go-ntrip-client"

// Version is the version sent in the User-Agent header.  It's set at link
// time: -ldflags "-X github.com/goblimey/go-ntrip-client/ntrip.Version=1.2.3"
var Version = "0.1.0"

// DefaultUserAgent returns the User-Agent header value, name/version.
func DefaultUserAgent() string {
	return Product + "/" + Version
}

// initialReadSize is the size of the one read that fetches the caster's
// response to the request.
const initialReadSize = 4096

// ResponseError is returned when the caster does not accept the request.
// Status is the first line of the response.
type ResponseError struct {
	Status string
}

func (e *ResponseError) Error() string {
	return "caster rejected the request: " + e.Status
}

// BuildRequest returns the request that asks the caster for a mount.  An
// empty mount asks for the sourcetable.  The Authorization header is only
// sent if there is a user name.
func BuildRequest(endpoint config.Endpoint, mount string, credentials config.Credentials, userAgent string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "GET /%s HTTP/1.0\r\n", strings.TrimPrefix(mount, "/"))
	fmt.Fprintf(&b, "Host: %s\r\n", endpoint.Address())
	b.WriteString("Ntrip-Version: NTRIP/2.0\r\n")
	b.WriteString("Accept: */*\r\n")
	b.WriteString("Connection: close\r\n")
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	if credentials.HasUser() {
		fmt.Fprintf(&b, "Authorization: %s\r\n", credentials.BasicAuth())
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// PerformHandshake sends the request and reads the caster's response with a
// single read.  The response is accepted if its first line contains
// "200 OK", which covers "HTTP/1.1 200 OK", "ICY 200 OK" and
// "SOURCETABLE 200 OK".  It returns everything that the read fetched, which
// may include the start of the data.
func PerformHandshake(rw io.ReadWriter, endpoint config.Endpoint, mount string, credentials config.Credentials, userAgent string) ([]byte, error) {
	addr := endpoint.Address()

	writer := bufio.NewWriter(rw)
	if _, err := writer.Write(BuildRequest(endpoint, mount, credentials, userAgent)); err != nil {
		return nil, &transport.ConnectionError{Op: "write", Addr: addr, Err: err}
	}
	if err := writer.Flush(); err != nil {
		return nil, &transport.ConnectionError{Op: "write", Addr: addr, Err: err}
	}

	buffer := make([]byte, initialReadSize)
	n, err := rw.Read(buffer)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, &ResponseError{Status: "empty response"}
		}
		return nil, &transport.ConnectionError{Op: "read", Addr: addr, Err: err}
	}
	response := buffer[:n]

	status := firstLine(response)
	if !strings.Contains(status, "200 OK") {
		return nil, &ResponseError{Status: status}
	}

	return response, nil
}

// firstLine returns the first line of the response without its line ending.
func firstLine(response []byte) string {
	line := response
	if i := bytes.IndexByte(response, '\n'); i >= 0 {
		line = response[:i]
	}
	return strings.TrimRight(string(line), "\r")
}
