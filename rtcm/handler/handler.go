package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/goblimey/go-crc24q/crc24q"

	"github.com/goblimey/go-ntrip-client/rtcm/utils"
)

// The handler package contains the RTCM3 frame codec.  An RTCM3 message frame
// is a three byte leader, the message and a three byte CRC:
//
//	+----------+--------+-----------+--------------------+----------+
//	| preamble | 000000 |  length   |    data message    |  parity  |
//	+----------+--------+-----------+--------------------+----------+
//	|<-- 8 --->|<- 6 -->|<-- 10 --->|<--- length x 8 --->|<-- 24 -->|
//
// The preamble is always 0xd3.  The message starts with a 12-bit message
// type.  The parity is a CRC-24Q checksum of the leader and the message.
//
//	handler := handler.New(logger)
//	message, consumed, err := handler.DecodeFrame(buffer)
//
// DecodeFrame looks at the start of the buffer only.  It never skips bytes
// looking for a frame; that is the caller's job.

// ErrIncompleteFrame is returned when the buffer holds the start of a frame
// but not all of it.  More data may complete the frame.
var ErrIncompleteFrame = errors.New("incomplete message frame")

// ErrNotRTCM is returned when the bytes at the start of the buffer cannot be
// the start of an RTCM3 message frame.
var ErrNotRTCM = errors.New("not an RTCM3 message frame")

// ErrCRC is returned when the frame's CRC does not match its contents.
var ErrCRC = errors.New("CRC check failed")

// Message is a decoded RTCM3 message frame.
type Message struct {
	// MessageType is the type of the RTCM message (the message number).
	MessageType int

	// RawData is the message frame in its original binary form
	// including the leader and the CRC.
	RawData []byte
}

// Length returns the length of the message within the frame, excluding
// the leader and the CRC.
func (message *Message) Length() int {
	n := len(message.RawData) - utils.LeaderLengthBytes - utils.CRCLengthBytes
	if n < 0 {
		return 0
	}
	return n
}

// Title returns a short description of the message type.
func (message *Message) Title() string {
	return utils.GetTitle(message.MessageType)
}

// String returns a one-line summary of the message.
func (message *Message) String() string {
	return fmt.Sprintf("message type %d, frame length %d (%s)",
		message.MessageType, len(message.RawData), message.Title())
}

// Handler decodes RTCM3 message frames.
type Handler struct {
	logger *slog.Logger
}

// New creates a Handler.  If logger is nil, nothing is logged.
func New(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{logger: logger}
}

// DecodeFrame decodes the message frame at the start of bitStream.  On
// success it returns the message and the number of bytes that the frame
// occupies.  The message holds a copy of the frame, so the caller may reuse
// the buffer.
func (rtcmHandler *Handler) DecodeFrame(bitStream []byte) (*Message, int, error) {

	messageLength, messageType, err := GetMessageLengthAndType(bitStream)
	if err != nil {
		return nil, 0, err
	}

	frameLength := utils.LeaderLengthBytes + int(messageLength) + utils.CRCLengthBytes
	if len(bitStream) < frameLength {
		return nil, 0, ErrIncompleteFrame
	}

	frame := bitStream[:frameLength]
	crcError := CheckCRC(messageType, messageLength, frame)
	if crcError != nil {
		rtcmHandler.logger.Debug("rejecting frame", "type", messageType, "error", crcError)
		return nil, 0, crcError
	}

	rawData := make([]byte, frameLength)
	copy(rawData, frame)

	return &Message{MessageType: messageType, RawData: rawData}, frameLength, nil
}

// GetMessageLengthAndType extracts the message length and the message type from
// the leader of an RTCM message frame or returns an error, implying that this is
// not the start of a valid message.  If the bit stream is too short to hold the
// leader and the message type, the error is ErrIncompleteFrame.
func GetMessageLengthAndType(bitStream []byte) (uint, int, error) {

	if len(bitStream) == 0 {
		return 0, 0, ErrIncompleteFrame
	}

	// The message header is 24 bits.  The top byte is startOfMessage.
	if bitStream[0] != utils.StartOfMessageFrame {
		return 0, 0, fmt.Errorf("%w: message starts with 0x%02x not 0xd3", ErrNotRTCM, bitStream[0])
	}

	if len(bitStream) < utils.MinFrameHeaderBytes {
		return 0, 0, ErrIncompleteFrame
	}

	// The next six bits must be zero.  If not, we've just come across
	// a 0xd3 byte in a stream of binary data.
	sanityCheck := utils.GetBitsAsUint64(bitStream, 8, 6)
	if sanityCheck != 0 {
		return 0, 0, fmt.Errorf("%w: bits 8-13 of header are %d, must be 0", ErrNotRTCM, sanityCheck)
	}

	// The bottom ten bits of the leader give the message length.
	length := uint(utils.GetBitsAsUint64(bitStream, 14, 10))

	// The 12-bit message type follows the header.
	messageType := int(utils.GetBitsAsUint64(bitStream, 24, 12))

	// length must be > 0. (We deferred this check until now because we want
	// the message type in the error.)
	if length == 0 {
		return 0, messageType, fmt.Errorf("%w: zero length message, type %d", ErrNotRTCM, messageType)
	}

	return length, messageType, nil
}

// CheckCRC checks the CRC of a message frame and returns an error
// if the calculated CRC does not match the CRC bytes in the frame.
// The error message contains the message type and length.
func CheckCRC(messageType int, messageLength uint, frame []byte) error {
	if len(frame) < (utils.LeaderLengthBytes + utils.CRCLengthBytes) {
		return fmt.Errorf("%w: cannot check CRC - frame is too short", ErrIncompleteFrame)
	}
	// The CRC is the last three bytes of the message frame.
	// The rest of the frame should produce the same CRC.
	startOfCRC := len(frame) - utils.CRCLengthBytes
	crcHiByte := frame[startOfCRC]
	crcMiByte := frame[startOfCRC+1]
	crcLoByte := frame[startOfCRC+2]

	newCRC := crc24q.Hash(frame[:startOfCRC])

	if crc24q.HiByte(newCRC) != crcHiByte ||
		crc24q.MiByte(newCRC) != crcMiByte ||
		crc24q.LoByte(newCRC) != crcLoByte {

		return fmt.Errorf(
			"%w on message type %d, length 0x%x - given %02x %02x %02x, calculated %02x %02x %02x",
			ErrCRC, messageType, messageLength,
			crcHiByte, crcMiByte, crcLoByte,
			crc24q.HiByte(newCRC), crc24q.MiByte(newCRC), crc24q.LoByte(newCRC),
		)
	}

	return nil
}

// EncodeFrame wraps a message in an RTCM3 frame: the leader, the message and
// the CRC.  The message must start with the 12-bit message type.
func EncodeFrame(message []byte) ([]byte, error) {
	if len(message) < 2 {
		return nil, errors.New("message is too short to hold a message type")
	}
	if len(message) > utils.MaxMessageLength {
		return nil, fmt.Errorf("message length %d is more than %d", len(message), utils.MaxMessageLength)
	}

	frame := make([]byte, 0, utils.LeaderLengthBytes+len(message)+utils.CRCLengthBytes)
	frame = append(frame, utils.StartOfMessageFrame, byte(len(message)>>8), byte(len(message)))
	frame = append(frame, message...)
	crc := crc24q.Hash(frame)
	frame = append(frame, crc24q.HiByte(crc), crc24q.MiByte(crc), crc24q.LoByte(crc))

	return frame, nil
}

// EncodeMessageType returns a message body of the given length whose first
// 12 bits hold the message type.  The rest of the body is zero.
func EncodeMessageType(messageType int, length int) []byte {
	if length < 2 {
		length = 2
	}
	body := make([]byte, length)
	body[0] = byte(messageType >> 4)
	body[1] = byte(messageType<<4) & 0xf0
	return body
}
