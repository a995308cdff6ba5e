package ntrip

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/goblimey/go-ntrip-client/messagequeue"
	"github.com/goblimey/go-ntrip-client/metrics"
	"github.com/goblimey/go-ntrip-client/rtcm/handler"
	"github.com/goblimey/go-ntrip-client/shutdown"
	"github.com/goblimey/go-ntrip-client/transport"
)

// Stream is the consumer's end of a mount subscription.  Messages arrive in
// the order that the caster sent them.  The stream ends when the caster
// closes the connection, when the shutdown signal is sent or when the
// connection fails.  Err says which.
type Stream struct {
	mount string
	queue *messagequeue.Queue[*handler.Message]
	done  chan struct{}
	err   error
}

// Mount returns the name of the mount.
func (s *Stream) Mount() string {
	return s.mount
}

// Next returns the next message, waiting for one if necessary.  It returns
// false when the stream has ended and every message has been taken, or when
// ctx is done.
func (s *Stream) Next(ctx context.Context) (*handler.Message, bool) {
	return s.queue.Pop(ctx)
}

// TryNext returns the next message if one is waiting.  It never blocks.
func (s *Stream) TryNext() (*handler.Message, bool) {
	return s.queue.TryPop()
}

// All returns the messages as a sequence for use with range.  The sequence
// can only be consumed once.  It stops early if ctx is done.
func (s *Stream) All(ctx context.Context) iter.Seq[*handler.Message] {
	return func(yield func(*handler.Message) bool) {
		for {
			message, ok := s.Next(ctx)
			if !ok || !yield(message) {
				return
			}
		}
	}
}

// Done is closed when the subscription has ended.  Messages may still be
// waiting to be taken.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns nil if the stream ended because the caster closed the
// connection or because of the shutdown signal.  Otherwise it returns the
// error that ended it: ErrTooManyParseErrors or a *transport.ConnectionError.
// It returns nil while the stream is still running.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// readResult is the outcome of one read from the caster.
type readResult struct {
	data []byte
	err  error
}

// session runs the decode loop for one subscription.
type session struct {
	mount    string
	addr     string
	conn     io.ReadCloser
	decoder  *decoder
	stream   *Stream
	shutdown *shutdown.Subscription
	readSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Session end reasons, used in the logs and the metrics.
const (
	endEOF         = "eof"
	endShutdown    = "shutdown"
	endParseErrors = "parse_errors"
	endTransport   = "transport"
)

// run is the session goroutine.  It's the only writer to the decode buffer
// and the message queue.  A second goroutine does the reads so that a read
// can be raced against the shutdown signal.
func (s *session) run() {
	stop := make(chan struct{})
	reads := make(chan readResult)
	go readLoop(s.conn, s.readSize, reads, stop)

	reason, err := s.loop(reads)

	// Closing the connection unblocks the reader.
	close(stop)
	s.conn.Close()
	s.shutdown.Unsubscribe()

	s.logger.Info("subscription ended", "mount", s.mount, "reason", reason, "error", err)
	s.metrics.SessionEnded(s.mount, reason)

	// Err must be ready by the time the consumer sees the queue close.
	s.stream.err = err
	close(s.stream.done)
	s.stream.queue.Close()
}

// loop processes reads until the stream ends.
func (s *session) loop(reads <-chan readResult) (string, error) {

	// The handshake read may have carried complete frames.
	if err := s.decode(); err != nil {
		return endParseErrors, err
	}

	for {
		select {
		case <-s.shutdown.C:
			return endShutdown, nil

		case result := <-reads:
			if len(result.data) > 0 {
				s.metrics.BytesReceived(s.mount, len(result.data))
				s.decoder.append(result.data)
				dropped := s.decoder.resync()
				if dropped > 0 {
					s.logger.Debug("dropped bytes looking for the start of a frame",
						"mount", s.mount, "bytes", dropped)
					s.metrics.BytesDropped(s.mount, dropped)
				}
				if err := s.decode(); err != nil {
					return endParseErrors, err
				}
			}

			switch {
			case result.err == nil && len(result.data) == 0,
				errors.Is(result.err, io.EOF):
				s.logRemaining()
				return endEOF, nil
			case result.err != nil:
				select {
				case <-s.shutdown.C:
					// The read failed because we are shutting down.
					return endShutdown, nil
				default:
				}
				return endTransport, &transport.ConnectionError{Op: "read", Addr: s.addr, Err: result.err}
			}
		}
	}
}

// decode extracts what messages it can from the buffer and queues them.
func (s *session) decode() error {
	failures, err := s.decoder.extract(func(message *handler.Message) {
		s.stream.queue.Push(message)
		s.metrics.FrameDecoded(s.mount, strconv.Itoa(message.MessageType))
	})

	if failures > 0 {
		s.metrics.ParseError(s.mount)
		s.logger.Debug("frame decode failed", "mount", s.mount,
			"consecutive", s.decoder.consecutiveErrors, "error", s.decoder.lastError)
	}

	return err
}

// logRemaining logs whatever is left in the buffer when the caster closes
// the connection.  Casters often send an error message in plain text.
func (s *session) logRemaining() {
	remaining := s.decoder.remaining()
	if len(remaining) == 0 {
		return
	}
	if utf8.Valid(remaining) {
		s.logger.Info("caster closed the connection", "mount", s.mount, "remaining", string(remaining))
		return
	}
	s.logger.Info("caster closed the connection", "mount", s.mount, "remaining_bytes", len(remaining))
}

// readLoop reads from r and sends each result to out until a read fails or
// stop is closed.  Each read gets a new buffer, since the receiver keeps it.
func readLoop(r io.Reader, size int, out chan<- readResult, stop <-chan struct{}) {
	for {
		buffer := make([]byte, size)
		n, err := r.Read(buffer)
		select {
		case out <- readResult{data: buffer[:n], err: err}:
		case <-stop:
			return
		}
		if err != nil || n == 0 {
			return
		}
	}
}
