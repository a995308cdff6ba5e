// Package ntrip is an NTRIP client.  It fetches a caster's sourcetable and
// subscribes to a mount, delivering the RTCM3 messages that the caster sends.
//
//	endpoint, err := config.ParseEndpoint("rtk2go")
//	client := ntrip.New(endpoint, config.NewCredentials("me@example.com"))
//	signal := shutdown.New()
//	stream, err := client.Subscribe(ctx, "VargaRTKhr", signal)
//	for message := range stream.All(ctx) {
//		...
//	}
//
// Sending the shutdown signal ends every subscription that is listening to
// it.  There is no reconnection: when a subscription ends, make a new one.
package ntrip

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/dolmen-go/contextio"

	"github.com/goblimey/go-ntrip-client/config"
	"github.com/goblimey/go-ntrip-client/messagequeue"
	"github.com/goblimey/go-ntrip-client/metrics"
	"github.com/goblimey/go-ntrip-client/rtcm/handler"
	"github.com/goblimey/go-ntrip-client/shutdown"
	"github.com/goblimey/go-ntrip-client/sourcetable"
	"github.com/goblimey/go-ntrip-client/transport"
)

// DefaultReadSize is the size of each read from the caster.
const DefaultReadSize = 4096

// Client talks to one caster.  It holds no connection between calls and
// is safe for concurrent use.
type Client struct {
	endpoint         config.Endpoint
	credentials      config.Credentials
	userAgent        string
	transportOptions transport.Options
	codec            FrameDecoder
	readSize         int
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.  By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent replaces DefaultUserAgent.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) { c.userAgent = userAgent }
}

// WithTransportOptions sets the dial timeout and TLS trust roots.
func WithTransportOptions(opts transport.Options) Option {
	return func(c *Client) { c.transportOptions = opts }
}

// WithFrameDecoder replaces the RTCM3 frame codec.
func WithFrameDecoder(codec FrameDecoder) Option {
	return func(c *Client) { c.codec = codec }
}

// WithReadSize sets the size of each read from the caster.
func WithReadSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// New creates a client for the caster at endpoint.
func New(endpoint config.Endpoint, credentials config.Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		credentials: credentials,
		userAgent:   DefaultUserAgent(),
		readSize:    DefaultReadSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.codec == nil {
		c.codec = handler.New(c.logger)
	}
	return c
}

// Endpoint returns the caster's endpoint.
func (c *Client) Endpoint() config.Endpoint {
	return c.endpoint
}

// connect opens a connection and performs the handshake for the mount.  The
// context bounds both.  It returns the connection and the bytes fetched by
// the handshake read.
func (c *Client) connect(ctx context.Context, mount string) (net.Conn, []byte, error) {
	conn, err := transport.Open(ctx, c.endpoint, c.transportOptions)
	if err != nil {
		return nil, nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// Cancelling the context closes the connection, which unblocks the
	// handshake.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	response, err := PerformHandshake(conn, c.endpoint, mount, c.credentials, c.userAgent)

	if !stop() {
		conn.Close()
		return nil, nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	conn.SetDeadline(time.Time{})

	c.logger.Debug("handshake complete", "caster", c.endpoint.String(), "mount", mount,
		"status", firstLine(response))

	return conn, response, nil
}

// ListMounts fetches and parses the caster's sourcetable.
func (c *Client) ListMounts(ctx context.Context) (*sourcetable.ServerInfo, error) {
	conn, response, err := c.connect(ctx, "")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	body := io.MultiReader(bytes.NewReader(response), contextio.NewReader(ctx, conn))
	info, err := sourcetable.ParseReader(body)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transport.ConnectionError{Op: "read", Addr: c.endpoint.Address(), Err: err}
	}

	c.logger.Info("fetched sourcetable", "caster", c.endpoint.String(),
		"mounts", len(info.Mounts), "skipped", info.SkippedLines)
	c.metrics.SourcetableMounts(len(info.Mounts))

	return info, nil
}

// Subscribe connects to the mount and starts delivering its messages.  The
// context bounds the connection and the handshake only.  The subscription
// runs until the caster closes the connection, the connection fails, the
// frame decoder gives up or the signal is sent.
func (c *Client) Subscribe(ctx context.Context, mount string, signal *shutdown.Signal) (*Stream, error) {
	conn, response, err := c.connect(ctx, mount)
	if err != nil {
		return nil, err
	}

	c.logger.Info("subscribed", "caster", c.endpoint.String(), "mount", mount)

	return c.start(conn, mount, response, signal), nil
}

// start runs the decode loop for a connection that has completed the
// handshake.  seed is what the handshake read fetched.
func (c *Client) start(conn io.ReadCloser, mount string, seed []byte, signal *shutdown.Signal) *Stream {
	// Subscribe before the goroutine starts so that a Send made after
	// Subscribe returns is never missed.
	sub := signal.Subscribe()

	stream := &Stream{
		mount: mount,
		queue: messagequeue.New[*handler.Message](),
		done:  make(chan struct{}),
	}

	decoder, dropped := newDecoder(c.codec, seed)
	c.metrics.BytesDropped(mount, dropped)

	s := &session{
		mount:    mount,
		addr:     c.endpoint.Address(),
		conn:     conn,
		decoder:  decoder,
		stream:   stream,
		shutdown: sub,
		readSize: c.readSize,
		logger:   c.logger,
		metrics:  c.metrics,
	}

	c.metrics.SessionStarted()

	go s.run()

	return stream
}
