// Package relay republishes the RTCM3 messages from a mount subscription to
// a message broker, so that several consumers can share one connection to
// the caster.  Each message is sent as the raw frame, exactly as it arrived.
package relay

import (
	"context"
	"errors"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/goblimey/go-ntrip-client/rtcm/handler"
)

// HeaderMessageType is the NATS header that carries the RTCM message type.
const HeaderMessageType = "Rtcm-Message-Type"

// DefaultPrefix is the subject or channel prefix used when none is given.
const DefaultPrefix = "rtcm"

// Publisher sends messages received from a mount somewhere else.
type Publisher interface {
	Publish(ctx context.Context, mount string, message *handler.Message) error
	Close() error
}

// natsConn is the part of *nats.Conn that NATSPublisher uses.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	Close()
}

// NATSPublisher publishes each message on the subject "<prefix>.<mount>".
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// DialNATS connects to the NATS server at url.
func DialNATS(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("go-ntrip-client"))
	if err != nil {
		return nil, err
	}
	return NewNATSPublisher(conn, prefix), nil
}

// NewNATSPublisher creates a NATSPublisher using an existing connection.
func NewNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject that messages from mount are published on.
func (p *NATSPublisher) Subject(mount string) string {
	return p.prefix + "." + mount
}

// Publish sends the message frame with its type in a header.  NATS
// publishes are buffered, so ctx is not consulted.
func (p *NATSPublisher) Publish(_ context.Context, mount string, message *handler.Message) error {
	msg := nats.NewMsg(p.Subject(mount))
	msg.Data = message.RawData
	msg.Header.Set(HeaderMessageType, strconv.Itoa(message.MessageType))
	return p.conn.PublishMsg(msg)
}

// Close closes the connection.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// redisClient is the part of *redis.Client that RedisPublisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes each message on the channel "<prefix>:<mount>".
type RedisPublisher struct {
	client redisClient
	prefix string
}

// DialRedis connects to the redis server at addr and checks that it
// answers.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisPublisher(client, prefix), nil
}

// NewRedisPublisher creates a RedisPublisher using an existing client.
func NewRedisPublisher(client redisClient, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the channel that messages from mount are published on.
func (p *RedisPublisher) Channel(mount string) string {
	return p.prefix + ":" + mount
}

// Publish sends the message frame.
func (p *RedisPublisher) Publish(ctx context.Context, mount string, message *handler.Message) error {
	return p.client.Publish(ctx, p.Channel(mount), message.RawData).Err()
}

// Close closes the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Multi sends each message to all of its publishers.
type Multi []Publisher

// Publish sends the message to every publisher, even if some fail, and
// returns the failures joined together.
func (m Multi) Publish(ctx context.Context, mount string, message *handler.Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, mount, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
