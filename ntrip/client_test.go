package ntrip

import (
	"bufio"
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goblimey/go-ntrip-client/config"
	"github.com/goblimey/go-ntrip-client/rtcm/handler"
	"github.com/goblimey/go-ntrip-client/shutdown"
	"github.com/goblimey/go-ntrip-client/transport"
)

const testTimeout = 10 * time.Second

// fakeCaster is an in-process caster.  Each connection reads the request
// and hands the connection to serve.
type fakeCaster struct {
	listener net.Listener
	mutex    sync.Mutex
	requests []string
	wg       sync.WaitGroup
}

func newFakeCaster(t *testing.T, serve func(conn net.Conn, requestLine string)) *fakeCaster {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	caster := &fakeCaster{listener: listener}

	caster.wg.Add(1)
	go func() {
		defer caster.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			caster.wg.Add(1)
			go func() {
				defer caster.wg.Done()
				defer conn.Close()
				request, err := readRequest(conn)
				if err != nil {
					return
				}
				caster.mutex.Lock()
				caster.requests = append(caster.requests, request)
				caster.mutex.Unlock()
				serve(conn, strings.SplitN(request, "\r\n", 2)[0])
			}()
		}
	}()

	t.Cleanup(func() {
		listener.Close()
		caster.wg.Wait()
	})

	return caster
}

// readRequest reads up to the blank line that ends the request.
func readRequest(conn net.Conn) (string, error) {
	reader := bufio.NewReader(conn)
	var request strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		request.WriteString(line)
		if line == "\r\n" {
			return request.String(), nil
		}
	}
}

func (c *fakeCaster) endpoint(t *testing.T) config.Endpoint {
	return endpointFromAddress(t, c.listener.Addr().String())
}

func (c *fakeCaster) lastRequest() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.requests) == 0 {
		return ""
	}
	return c.requests[len(c.requests)-1]
}

func endpointFromAddress(t *testing.T, addr string) config.Endpoint {
	t.Helper()
	host, portString, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		t.Fatal(err)
	}
	return config.Endpoint{Host: host, Port: uint16(port)}
}

// drain collects every message from the stream.
func drain(t *testing.T, stream *Stream) []int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	var types []int
	for message := range stream.All(ctx) {
		types = append(types, message.MessageType)
	}
	if ctx.Err() != nil {
		t.Fatal("timed out waiting for the stream to end")
	}
	return types
}

func TestSubscribe(t *testing.T) {
	frames := [][]byte{
		makeFrame(t, 1005, 19),
		makeFrame(t, 1077, 300),
		makeFrame(t, 1087, 250),
		makeFrame(t, 1230, 8),
	}

	caster := newFakeCaster(t, func(conn net.Conn, requestLine string) {
		// The response and the first frame arrive together.
		conn.Write(append([]byte("ICY 200 OK\r\n"), frames[0]...))
		for _, frame := range frames[1:] {
			// Split each frame to check reassembly.
			conn.Write(frame[:10])
			time.Sleep(time.Millisecond)
			conn.Write(frame[10:])
		}
	})

	client := New(caster.endpoint(t), config.NewCredentials("user").WithPassword("pass"))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	stream, err := client.Subscribe(ctx, "M1", shutdown.New())
	if err != nil {
		t.Fatal(err)
	}

	got := drain(t, stream)

	if diff := cmp.Diff([]int{1005, 1077, 1087, 1230}, got); diff != "" {
		t.Error(diff)
	}
	if err := stream.Err(); err != nil {
		t.Errorf("want a clean end, got %v", err)
	}
	if stream.Mount() != "M1" {
		t.Errorf("want mount M1 got %s", stream.Mount())
	}

	request := caster.lastRequest()
	if !strings.HasPrefix(request, "GET /M1 HTTP/1.0\r\n") {
		t.Errorf("unexpected request %q", request)
	}
	if !strings.Contains(request, "Authorization: Basic dXNlcjpwYXNz\r\n") {
		t.Errorf("no credentials in %q", request)
	}
}

// TestSubscribeRejected checks that a rejection by the caster is returned
// by Subscribe.
func TestSubscribeRejected(t *testing.T) {
	caster := newFakeCaster(t, func(conn net.Conn, requestLine string) {
		conn.Write([]byte("HTTP/1.1 401 Unauthorized\r\n\r\n"))
	})

	client := New(caster.endpoint(t), config.Credentials{})

	_, err := client.Subscribe(context.Background(), "M1", shutdown.New())

	var responseError *ResponseError
	if !errors.As(err, &responseError) {
		t.Fatalf("want ResponseError, got %v", err)
	}
	if responseError.Status != "HTTP/1.1 401 Unauthorized" {
		t.Errorf("wrong status %q", responseError.Status)
	}
}

// TestSubscribeShutdown checks that the shutdown signal ends a subscription
// that is waiting for data.
func TestSubscribeShutdown(t *testing.T) {
	frame := makeFrame(t, 1005, 19)
	release := make(chan struct{})
	caster := newFakeCaster(t, func(conn net.Conn, requestLine string) {
		conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
		conn.Write(frame)
		// Keep the connection open until the test ends.
		<-release
	})
	defer close(release)

	client := New(caster.endpoint(t), config.Credentials{})
	signal := shutdown.New()

	stream, err := client.Subscribe(context.Background(), "M1", signal)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	message, ok := stream.Next(ctx)
	if !ok {
		t.Fatal("no message")
	}
	if message.MessageType != 1005 {
		t.Errorf("want 1005 got %d", message.MessageType)
	}

	if n := signal.Send(); n != 1 {
		t.Errorf("want 1 subscriber told, got %d", n)
	}

	select {
	case <-stream.Done():
	case <-time.After(testTimeout):
		t.Fatal("stream did not end")
	}

	if err := stream.Err(); err != nil {
		t.Errorf("want a clean end, got %v", err)
	}
	if _, ok := stream.Next(ctx); ok {
		t.Error("message after shutdown")
	}
}

// TestSubscribeTooManyErrors checks that a corrupt frame at the head of the
// buffer ends the subscription after five reads.
func TestSubscribeTooManyErrors(t *testing.T) {
	corrupt := makeFrame(t, 1005, 19)
	corrupt[len(corrupt)-1] ^= 0xff

	reader := &chunkReader{chunks: [][]byte{{1}, {2}, {3}, {4}, {5}, {6}}}

	client := New(config.Endpoint{}, config.Credentials{})
	stream := client.start(reader, "M1", corrupt, shutdown.New())

	got := drain(t, stream)
	if len(got) != 0 {
		t.Errorf("want no messages, got %v", got)
	}
	if !errors.Is(stream.Err(), ErrTooManyParseErrors) {
		t.Errorf("want ErrTooManyParseErrors, got %v", stream.Err())
	}
	if !reader.isClosed() {
		t.Error("connection not closed")
	}
}

// TestSubscribeReadError checks that a failed read ends the subscription
// with a ConnectionError.
func TestSubscribeReadError(t *testing.T) {
	frame := makeFrame(t, 1005, 19)
	reader := &chunkReader{chunks: [][]byte{frame}, err: errors.New("connection reset")}

	client := New(config.Endpoint{Host: "caster.example.com", Port: 2101}, config.Credentials{})
	stream := client.start(reader, "M1", nil, shutdown.New())

	got := drain(t, stream)
	if diff := cmp.Diff([]int{1005}, got); diff != "" {
		t.Error(diff)
	}

	var connectionError *transport.ConnectionError
	if !errors.As(stream.Err(), &connectionError) {
		t.Fatalf("want ConnectionError, got %v", stream.Err())
	}
	if connectionError.Op != "read" || connectionError.Addr != "caster.example.com:2101" {
		t.Errorf("wrong error %v", connectionError)
	}
}

// TestSubscribeZeroLengthRead checks that a read of nothing ends the
// subscription cleanly, leaving undecoded bytes behind.
func TestSubscribeZeroLengthRead(t *testing.T) {
	reader := &chunkReader{chunks: [][]byte{[]byte("\xd3\x00"), {}}}

	client := New(config.Endpoint{}, config.Credentials{})
	stream := client.start(reader, "M1", nil, shutdown.New())

	got := drain(t, stream)
	if len(got) != 0 {
		t.Errorf("want no messages, got %v", got)
	}
	if err := stream.Err(); err != nil {
		t.Errorf("want a clean end, got %v", err)
	}
}

// TestTryNext checks the polling form.
func TestTryNext(t *testing.T) {
	reader := &chunkReader{chunks: [][]byte{makeFrame(t, 1230, 8)}}

	client := New(config.Endpoint{}, config.Credentials{})
	stream := client.start(reader, "M1", nil, shutdown.New())

	select {
	case <-stream.Done():
	case <-time.After(testTimeout):
		t.Fatal("stream did not end")
	}

	message, ok := stream.TryNext()
	if !ok || message.MessageType != 1230 {
		t.Fatalf("want message 1230, got %v %v", message, ok)
	}
	if _, ok := stream.TryNext(); ok {
		t.Error("want an empty stream")
	}
}

// chunkReader returns the chunks one per read, then err or io.EOF.
type chunkReader struct {
	mutex  sync.Mutex
	chunks [][]byte
	err    error
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closed = true
	return nil
}

func (r *chunkReader) isClosed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.closed
}

func TestListMounts(t *testing.T) {
	const table = "SOURCETABLE 200 OK\r\n" +
		"Server: NTRIP SNIP/2.0\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"STR;VargaRTKhr;Is near: Zagreb, Zagreb;RTCM 3.2;1006(1);;GPS+GLO;SNIP;HRV;46.44;16.50;1;0;sNTRIP;none;B;N;0;\r\n" +
		"STR;warrakam;Is near: Sydney;RTCM 3;1004(1);2;;SNIP;AUS;-36.37;144.46;1;0;SNIP;none;B;N;11740;\r\n" +
		"ENDSOURCETABLE\r\n"

	caster := newFakeCaster(t, func(conn net.Conn, requestLine string) {
		// Send the table in pieces.
		for i := 0; i < len(table); i += 50 {
			conn.Write([]byte(table[i:min(i+50, len(table))]))
		}
	})

	client := New(caster.endpoint(t), config.Credentials{})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	info, err := client.ListMounts(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if info.Server == nil || *info.Server != "NTRIP SNIP/2.0" {
		t.Errorf("wrong server %v", info.Server)
	}
	if len(info.Mounts) != 2 {
		t.Fatalf("want 2 mounts got %d", len(info.Mounts))
	}
	if info.Mounts[1].Name != "warrakam" {
		t.Errorf("want warrakam got %s", info.Mounts[1].Name)
	}

	if !strings.HasPrefix(caster.lastRequest(), "GET / HTTP/1.0\r\n") {
		t.Errorf("unexpected request %q", caster.lastRequest())
	}
	if strings.Contains(caster.lastRequest(), "Authorization") {
		t.Error("anonymous request carries an Authorization header")
	}
}

// TestListMountsCancelled checks that cancelling the context stops a caster
// that never answers.
func TestListMountsCancelled(t *testing.T) {
	release := make(chan struct{})
	caster := newFakeCaster(t, func(conn net.Conn, requestLine string) {
		<-release
	})
	defer close(release)

	client := New(caster.endpoint(t), config.Credentials{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ListMounts(ctx)
	if err == nil {
		t.Fatal("want an error")
	}
}

// TestSubscribeTLS runs a subscription over TLS against an HTTP server,
// which answers the NTRIP request like a version 2 caster.
func TestSubscribeTLS(t *testing.T) {
	frame1 := makeFrame(t, 1005, 19)
	frame2 := makeFrame(t, 1097, 170)

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/SECURE" || r.Header.Get("Ntrip-Version") != "NTRIP/2.0" {
			http.Error(w, "no such mount", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "gnss/data")
		w.Write(frame1)
		w.(http.Flusher).Flush()
		w.Write(frame2)
	}))
	defer server.Close()

	pool := x509.NewCertPool()
	pool.AddCert(server.Certificate())

	endpoint := endpointFromAddress(t, server.Listener.Addr().String()).WithEncryption(true)
	client := New(endpoint, config.Credentials{},
		WithTransportOptions(transport.Options{RootCAs: pool}),
		WithFrameDecoder(handler.New(nil)))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	stream, err := client.Subscribe(ctx, "SECURE", shutdown.New())
	if err != nil {
		t.Fatal(err)
	}

	got := drain(t, stream)
	if diff := cmp.Diff([]int{1005, 1097}, got); diff != "" {
		t.Error(diff)
	}

	// A mount that the server doesn't know is rejected.
	_, err = client.Subscribe(ctx, "NONE", shutdown.New())
	var responseError *ResponseError
	if !errors.As(err, &responseError) {
		t.Errorf("want ResponseError, got %v", err)
	}
}
