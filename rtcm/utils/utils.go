// Package utils contains constants and helper functions shared by the RTCM
// frame codec and the tools that display RTCM3 traffic.
package utils

import "strconv"

// StartOfMessageFrame is the value of the byte that starts an RTCM3 message frame.
const StartOfMessageFrame byte = 0xd3

// MaxMessageType is the largest message type.  The message type is 12 bits unsigned.
const MaxMessageType = 4095

// MaxMessageLength is the largest message length that the 10-bit length
// field of the frame leader can express.
const MaxMessageLength = 1023

// LeaderLengthBytes is the length of the message frame leader in bytes.
const LeaderLengthBytes = 3

// LeaderLengthBits is the length of the message frame leader in bits.
const LeaderLengthBits = LeaderLengthBytes * 8

// CRCLengthBytes is the length of the Cyclic Redundancy check value in bytes.
const CRCLengthBytes = 3

// MinFrameHeaderBytes is the number of bytes needed to read the leader and
// the 12-bit message type at the start of a frame.
const MinFrameHeaderBytes = LeaderLengthBytes + 2

// Station position message types.
const (
	MessageType1005 = 1005
	MessageType1006 = 1006
)

// Multiple Signal Message types.
const (
	MessageTypeMSM4GPS        = 1074
	MessageTypeMSM7GPS        = 1077
	MessageTypeMSM4Glonass    = 1084
	MessageTypeMSM7Glonass    = 1087
	MessageTypeMSM4Galileo    = 1094
	MessageTypeMSM7Galileo    = 1097
	MessageTypeMSM4SBAS       = 1104
	MessageTypeMSM7SBAS       = 1107
	MessageTypeMSM4QZSS       = 1114
	MessageTypeMSM7QZSS       = 1117
	MessageTypeMSM4Beidou     = 1124
	MessageTypeMSM7Beidou     = 1127
	MessageTypeMSM4NavicIrnss = 1134
	MessageTypeMSM7NavicIrnss = 1137
)

// MSM4 returns true if the message type is in the range of MSM4 messages.
func MSM4(messageType int) bool {
	return MSM(messageType) && messageType%10 == 4
}

// MSM7 returns true if the message type is in the range of MSM7 messages.
func MSM7(messageType int) bool {
	return MSM(messageType) && messageType%10 == 7
}

// MSM returns true if the message is any Multiple Signal Message.
func MSM(messageType int) bool {
	return messageType >= 1071 && messageType <= 1137
}

// GetConstellation returns the constellation given an MSM message type.
func GetConstellation(messageType int) string {
	if !MSM(messageType) {
		return "unknown constellation"
	}

	switch messageType / 10 {
	case 107:
		return "GPS"
	case 108:
		return "Glonass"
	case 109:
		return "Galileo"
	case 110:
		return "SBAS"
	case 111:
		return "QZSS"
	case 112:
		return "Beidou"
	case 113:
		return "NavIC/IRNSS"
	default:
		return "unknown constellation"
	}
}

// titles holds the titles of the message types commonly seen on casters.
// The data are taken mostly from https://www.use-snip.com/kb/knowledge-base/rtcm-3-message-list/
var titles = map[int]string{
	1001: "L1-Only GPS RTK Observables",
	1002: "Extended L1-Only GPS RTK Observables",
	1003: "L1&L2 GPS RTK Observables",
	1004: "Extended L1&L2 GPS RTK Observables",
	1005: "Stationary RTK Reference Station ARP",
	1006: "Stationary RTK Reference Station ARP with Antenna Height",
	1007: "Antenna Descriptor",
	1008: "Antenna Descriptor & Serial Number",
	1009: "L1-Only GLONASS RTK Observables",
	1010: "Extended L1-Only GLONASS RTK Observables",
	1011: "L1&L2 GLONASS RTK Observables",
	1012: "Extended L1&L2 GLONASS RTK Observables",
	1013: "System Parameters",
	1019: "GPS Ephemerides",
	1020: "GLONASS Ephemerides",
	1033: "Receiver and Antenna Descriptors",
	1042: "BDS Satellite Ephemeris Data",
	1044: "QZSS Ephemerides",
	1045: "Galileo F/NAV Satellite Ephemeris Data",
	1046: "Galileo I/NAV Satellite Ephemeris Data",
	1230: "GLONASS L1 and L2 Code-Phase Biases",
	4072: "Reserved for u-blox",
	4094: "Assigned to Trimble",
}

// GetTitle returns a short title for the message type.  MSM types are
// described by their constellation and MSM level.
func GetTitle(messageType int) string {
	if MSM(messageType) {
		return GetConstellation(messageType) + " MSM" + strconv.Itoa(messageType%10)
	}
	title, ok := titles[messageType]
	if !ok {
		return "unknown message type"
	}
	return title
}

// GetBitsAsUint64 extracts len bits from a slice of  bytes, starting
// at bit position pos and returns them as a uint.  See RTKLIB's getbitu.
func GetBitsAsUint64(buff []byte, pos uint, len uint) uint64 {
	const u64One uint64 = 1
	var result uint64 = 0
	for i := pos; i < pos+len; i++ {
		byteNumber := i / 8
		var byteContents uint64 = uint64(buff[byteNumber])
		var shiftBy uint = 7 - i%8
		// Shift the contents down to put the desired bit at the bottom.
		b := byteContents >> shiftBy
		bit := b & u64One
		// Shift the result up one bit and glue in the extracted bit.
		result = (result << 1) | bit
	}
	return result
}

// GetBitsAsInt64 extracts len bits from a slice of bytes, starting at bit
// position pos, and interprets them as a two's complement signed integer.
// See RTKLIB's getbits.
func GetBitsAsInt64(buff []byte, pos uint, len uint) int64 {
	uval := GetBitsAsUint64(buff, pos, len)
	if GetBitsAsUint64(buff, pos, 1) == 0 {
		return int64(uval)
	}
	// Negative: subtract the weight of the top bit.
	var mask uint64 = 1 << (len - 1)
	return -int64(uval&mask) + int64(uval&^mask)
}
