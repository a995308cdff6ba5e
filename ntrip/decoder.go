package ntrip

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goblimey/go-ntrip-client/rtcm/handler"
	"github.com/goblimey/go-ntrip-client/rtcm/utils"
)

// MinHeaderSize is the number of bytes that must be buffered before a
// decode is attempted.  The buffer must hold more than this.
const MinHeaderSize = 6

// MaxConsecutiveErrors is the number of failed decodes in a row that ends
// a subscription.
const MaxConsecutiveErrors = 5

// ErrTooManyParseErrors ends a subscription when the frame at the head of
// the buffer fails to decode MaxConsecutiveErrors times in a row.
var ErrTooManyParseErrors = errors.New("too many consecutive frame decode errors")

// FrameDecoder decodes the RTCM3 frame at the start of a buffer.  It returns
// the message and the number of bytes that the frame used.  If the buffer
// only holds part of a frame, the error is handler.ErrIncompleteFrame.
// *handler.Handler is a FrameDecoder.
type FrameDecoder interface {
	DecodeFrame(buffer []byte) (*handler.Message, int, error)
}

// decoder holds the rolling buffer of bytes received from the caster and
// turns it into messages.  It's owned by one goroutine.
type decoder struct {
	codec             FrameDecoder
	buffer            []byte
	consecutiveErrors int
	// lastError is the most recent decode error.
	lastError error
}

// newDecoder creates a decoder seeded with what followed the caster's
// response in the handshake read.  Anything before the first start of
// frame is dropped.  It returns the number of bytes dropped.
func newDecoder(codec FrameDecoder, seed []byte) (*decoder, int) {
	d := &decoder{codec: codec}
	d.buffer = append(d.buffer, seed...)
	dropped := d.resync()
	return d, dropped
}

// append adds newly read bytes to the end of the buffer.
func (d *decoder) append(data []byte) {
	d.buffer = append(d.buffer, data...)
}

// resync drops everything before the first start of frame byte, or the
// whole buffer if there isn't one.  It returns the number of bytes dropped.
// Afterwards the buffer is empty or starts with 0xd3.
func (d *decoder) resync() int {
	if len(d.buffer) == 0 || d.buffer[0] == utils.StartOfMessageFrame {
		return 0
	}

	i := bytes.IndexByte(d.buffer, utils.StartOfMessageFrame)
	if i < 0 {
		dropped := len(d.buffer)
		d.buffer = d.buffer[:0]
		return dropped
	}

	d.buffer = d.buffer[i:]
	return i
}

// extract decodes frames from the head of the buffer and hands each one to
// deliver.  It stops when the buffer is too short, when the frame at the
// head is incomplete or after a failed decode.  It returns the number of
// failed decodes (0 or 1) and ErrTooManyParseErrors if the limit has been
// reached.
func (d *decoder) extract(deliver func(*handler.Message)) (int, error) {
	for len(d.buffer) > MinHeaderSize {
		message, consumed, err := d.codec.DecodeFrame(d.buffer)
		if err == nil && (consumed <= 0 || consumed > len(d.buffer)) {
			err = fmt.Errorf("frame decoder consumed %d of %d bytes", consumed, len(d.buffer))
		}

		if err == nil {
			deliver(message)
			d.buffer = d.buffer[consumed:]
			d.consecutiveErrors = 0
			continue
		}

		if errors.Is(err, handler.ErrIncompleteFrame) {
			// Wait for the rest of the frame.
			return 0, nil
		}

		d.lastError = err
		d.consecutiveErrors++
		if d.consecutiveErrors >= MaxConsecutiveErrors {
			return 1, fmt.Errorf("%w: %d in a row, last %v", ErrTooManyParseErrors, d.consecutiveErrors, err)
		}
		// Wait for more data before trying again.
		return 1, nil
	}

	return 0, nil
}

// remaining returns the bytes that have not been decoded.
func (d *decoder) remaining() []byte {
	return d.buffer
}
