// Package acn implements the ACN root-layer PDU that carries every
// RDMnet message: a fixed preamble, a flags+length word, a 32-bit
// vector, a 16-byte component identifier, and a vector-typed payload.
package acn

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	preambleSize  = 0x0010
	postambleSize = 0x0000

	// HeaderLen is the length of preamble+postamble+PID+flags/length+
	// vector+CID, i.e. everything before the payload.
	HeaderLen = 2 + 2 + 12 + 2 + 4 + 16

	// MinRootLength is the smallest legal value of the flags+length
	// field's 12-bit length: vector(4) + CID(16) + 2.
	MinRootLength = 22

	flagsMask  = 0xF000
	lengthMask = 0x0FFF
	flagsValue = 0x7000
)

var acnPID = [12]byte{'A', 'S', 'C', '-', 'E', '1', '.', '1', '7', 0, 0, 0}

var (
	ErrTooShort       = errors.New("acn: packet too short")
	ErrBadPreamble    = errors.New("acn: bad preamble or postamble")
	ErrBadPID         = errors.New("acn: bad packet identifier")
	ErrBadFlags       = errors.New("acn: bad flags nibble")
	ErrRootTooShort   = errors.New("acn: root length below minimum")
	ErrTrailingBytes  = errors.New("acn: trailing bytes after root PDU")
	ErrTruncated      = errors.New("acn: truncated root PDU")
)

// Packet is a decoded ACN root-layer PDU.
type Packet struct {
	Vector  uint32
	CID     [16]byte
	Payload []byte
}

// Build assembles a root-layer packet carrying vector and data. If cid
// is the zero value, a random UUID is generated.
func Build(vector uint32, data []byte, cid [16]byte) []byte {
	if cid == ([16]byte{}) {
		id, err := uuid.NewRandom()
		if err == nil {
			cid = [16]byte(id)
		}
	}

	rootLen := MinRootLength + len(data)
	buf := make([]byte, HeaderLen+len(data))

	binary.BigEndian.PutUint16(buf[0:2], preambleSize)
	binary.BigEndian.PutUint16(buf[2:4], postambleSize)
	copy(buf[4:16], acnPID[:])
	binary.BigEndian.PutUint16(buf[16:18], uint16(flagsValue|(rootLen&lengthMask)))
	binary.BigEndian.PutUint32(buf[18:22], vector)
	copy(buf[22:38], cid[:])
	copy(buf[38:], data)

	return buf
}

// Parse validates and decodes a single root-layer packet. It rejects
// trailing bytes: data must contain exactly one packet.
func Parse(data []byte) (*Packet, error) {
	pkt, consumed, err := parseOne(data)
	if err != nil {
		return nil, err
	}
	if consumed != len(data) {
		return nil, fmt.Errorf("acn: parse: %w", ErrTrailingBytes)
	}
	return pkt, nil
}

func parseOne(data []byte) (*Packet, int, error) {
	if len(data) < HeaderLen {
		return nil, 0, fmt.Errorf("acn: parse: %w", ErrTooShort)
	}
	if binary.BigEndian.Uint16(data[0:2]) != preambleSize || binary.BigEndian.Uint16(data[2:4]) != postambleSize {
		return nil, 0, fmt.Errorf("acn: parse: %w", ErrBadPreamble)
	}
	for i, b := range acnPID {
		if data[4+i] != b {
			return nil, 0, fmt.Errorf("acn: parse: %w", ErrBadPID)
		}
	}

	flagsLength := binary.BigEndian.Uint16(data[16:18])
	if flagsLength&flagsMask != flagsValue {
		return nil, 0, fmt.Errorf("acn: parse: %w", ErrBadFlags)
	}
	rootLen := int(flagsLength & lengthMask)
	if rootLen < MinRootLength {
		return nil, 0, fmt.Errorf("acn: parse: root length %d: %w", rootLen, ErrRootTooShort)
	}

	total := 16 + rootLen // preamble size(2)+postamble size(2)+identifier(12) precede the root length
	if len(data) < total {
		return nil, 0, fmt.Errorf("acn: parse: %w", ErrTruncated)
	}

	pkt := &Packet{
		Vector: binary.BigEndian.Uint32(data[18:22]),
	}
	copy(pkt.CID[:], data[22:38])
	pkt.Payload = append([]byte(nil), data[38:total]...)

	return pkt, total, nil
}

// ExtractPackets drains as many complete root-layer packets as stream
// contains, returning them in order plus the undrained remainder (a
// partial trailing packet, or all of stream if it is malformed from
// the start).
func ExtractPackets(stream []byte) ([]*Packet, []byte) {
	var packets []*Packet
	for {
		pkt, consumed, err := parseOne(stream)
		if err != nil {
			return packets, stream
		}
		packets = append(packets, pkt)
		stream = stream[consumed:]
		if len(stream) == 0 {
			return packets, stream
		}
	}
}
