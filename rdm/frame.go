// Package rdm implements the E1.20 RDM (Remote Device Management) frame
// codec and the binary-split discovery algorithm used to enumerate RDM
// devices on a bus.
package rdm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gopatchy/dmxnet/uid"
)

const (
	// StartCode is the RDM start code, 0xCC, placed where a DMX start code
	// would otherwise appear.
	StartCode = 0xCC
	// SubStartCode identifies the RDM sub-protocol, always 0x01.
	SubStartCode = 0x01

	// MinMessageLength is the smallest legal RDM message length (header
	// plus checksum, zero parameter data).
	MinMessageLength = 24
	// MaxParameterDataLength is the largest legal PDL.
	MaxParameterDataLength = 231
)

var (
	// ErrInvalidStartCode is returned when the start code or sub-start
	// code byte does not match the E1.20 constants.
	ErrInvalidStartCode = errors.New("rdm: invalid start code")
	// ErrInvalidLength is returned when the message length field is out
	// of bounds or the buffer is shorter than it claims.
	ErrInvalidLength = errors.New("rdm: invalid length")
	// ErrInvalidPDL is returned when PDL exceeds its bound or does not
	// fit within the declared message length.
	ErrInvalidPDL = errors.New("rdm: invalid PDL")
	// ErrChecksumMismatch is returned when the trailing checksum does not
	// match the computed sum.
	ErrChecksumMismatch = errors.New("rdm: checksum mismatch")
)

// CommandClass is the RDM command-class byte.
type CommandClass uint8

const (
	CCDiscoveryCommand         CommandClass = 0x10
	CCDiscoveryCommandResponse CommandClass = 0x11
	CCGetCommand               CommandClass = 0x20
	CCGetCommandResponse       CommandClass = 0x21
	CCSetCommand               CommandClass = 0x30
	CCSetCommandResponse       CommandClass = 0x31
)

// Well-known discovery PIDs (E1.20 §A.1).
const (
	PIDDiscUniqueBranch = 0x0001
	PIDDiscMute         = 0x0002
	PIDDiscUnMute       = 0x0003
)

// Frame is a decoded E1.20 RDM message.
type Frame struct {
	Destination      uid.UID
	Source           uid.UID
	TransactionNum   uint8
	PortOrResponse   uint8
	MessageCount     uint8
	SubDevice        uint16
	CommandClass     CommandClass
	PID              uint16
	ParameterData    []byte
}

// Encode assembles the wire form of f: start code, sub-start, message
// length, destination/source UIDs, transaction number, port/response-type
// byte, message count, sub-device, command class, PID, PDL, parameter
// data, and a trailing big-endian 16-bit checksum equal to the unsigned
// sum of every preceding byte modulo 2^16.
func Encode(f Frame) ([]byte, error) {
	pdl := len(f.ParameterData)
	if pdl > MaxParameterDataLength {
		return nil, fmt.Errorf("rdm: encode: pdl %d exceeds %d: %w", pdl, MaxParameterDataLength, ErrInvalidPDL)
	}
	msgLen := MinMessageLength + pdl
	buf := make([]byte, msgLen+2)

	buf[0] = StartCode
	buf[1] = SubStartCode
	buf[2] = byte(msgLen)
	dst := f.Destination.Encode()
	src := f.Source.Encode()
	copy(buf[3:9], dst[:])
	copy(buf[9:15], src[:])
	buf[15] = f.TransactionNum
	buf[16] = f.PortOrResponse
	buf[17] = f.MessageCount
	binary.BigEndian.PutUint16(buf[18:20], f.SubDevice)
	buf[20] = byte(f.CommandClass)
	binary.BigEndian.PutUint16(buf[21:23], f.PID)
	buf[23] = byte(pdl)
	copy(buf[24:24+pdl], f.ParameterData)

	sum := checksum(buf[:msgLen])
	binary.BigEndian.PutUint16(buf[msgLen:msgLen+2], sum)

	return buf, nil
}

// Decode parses and validates a wire-form RDM message, checking start
// codes, message-length bounds, PDL bounds, and the trailing checksum.
func Decode(data []byte) (Frame, error) {
	if len(data) < 2 || data[0] != StartCode || data[1] != SubStartCode {
		return Frame{}, fmt.Errorf("rdm: decode: %w", ErrInvalidStartCode)
	}
	if len(data) < MinMessageLength {
		return Frame{}, fmt.Errorf("rdm: decode: buffer shorter than minimum %d: %w", MinMessageLength, ErrInvalidLength)
	}
	msgLen := int(data[2])
	if msgLen < MinMessageLength || len(data) < msgLen+2 {
		return Frame{}, fmt.Errorf("rdm: decode: message length %d invalid for buffer of %d bytes: %w", msgLen, len(data), ErrInvalidLength)
	}

	pdl := int(data[23])
	if pdl > MaxParameterDataLength || 24+pdl > msgLen {
		return Frame{}, fmt.Errorf("rdm: decode: pdl %d invalid: %w", pdl, ErrInvalidPDL)
	}

	want := checksum(data[:msgLen])
	got := binary.BigEndian.Uint16(data[msgLen : msgLen+2])
	if want != got {
		return Frame{}, fmt.Errorf("rdm: decode: checksum %04x != computed %04x: %w", got, want, ErrChecksumMismatch)
	}

	dst, err := uid.Decode(data[3:9])
	if err != nil {
		return Frame{}, err
	}
	src, err := uid.Decode(data[9:15])
	if err != nil {
		return Frame{}, err
	}

	pd := make([]byte, pdl)
	copy(pd, data[24:24+pdl])

	return Frame{
		Destination:    dst,
		Source:         src,
		TransactionNum: data[15],
		PortOrResponse: data[16],
		MessageCount:   data[17],
		SubDevice:      binary.BigEndian.Uint16(data[18:20]),
		CommandClass:   CommandClass(data[20]),
		PID:            binary.BigEndian.Uint16(data[21:23]),
		ParameterData:  pd,
	}, nil
}

func checksum(b []byte) uint16 {
	var sum uint32
	for _, v := range b {
		sum += uint32(v)
	}
	return uint16(sum & 0xFFFF)
}
