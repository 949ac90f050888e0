// Package uid implements RDM (E1.20) 48-bit device identifiers.
package uid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLength is returned when a UID is decoded from a buffer that is
// not exactly 6 bytes long.
var ErrInvalidLength = errors.New("uid: invalid length")

// ErrInvalidRange is returned by Midpoint when hi < lo.
var ErrInvalidRange = errors.New("uid: invalid range")

// ErrInvalidFormat is returned when parsing a malformed "manu:dev" string.
var ErrInvalidFormat = errors.New("uid: invalid format")

// UID is an RDM device identifier: a 16-bit manufacturer ID and a 32-bit
// device ID. The total order is lexicographic on (Manufacturer, Device).
type UID struct {
	Manufacturer uint16
	Device       uint32
}

// Min and Max bound the entire UID space.
var (
	Min = UID{Manufacturer: 0x0000, Device: 0x00000000}
	Max = UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF}
)

// New builds a UID from its two fields.
func New(manufacturer uint16, device uint32) UID {
	return UID{Manufacturer: manufacturer, Device: device}
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b,
// comparing lexicographically on (Manufacturer, Device).
func Cmp(a, b UID) int {
	if a.Manufacturer != b.Manufacturer {
		if a.Manufacturer < b.Manufacturer {
			return -1
		}
		return 1
	}
	switch {
	case a.Device < b.Device:
		return -1
	case a.Device > b.Device:
		return 1
	default:
		return 0
	}
}

// ToUint64 packs the UID into a single 48-bit value carried in a uint64,
// manufacturer in the high 16 bits and device in the low 32 bits.
func (u UID) ToUint64() uint64 {
	return uint64(u.Manufacturer)<<32 | uint64(u.Device)
}

// FromUint64 unpacks a value produced by ToUint64.
func FromUint64(v uint64) UID {
	return UID{
		Manufacturer: uint16(v >> 32),
		Device:       uint32(v),
	}
}

// Midpoint returns floor((lo+hi)/2) using 64-bit integer arithmetic. It
// fails if hi < lo.
func Midpoint(lo, hi UID) (UID, error) {
	if Cmp(hi, lo) < 0 {
		return UID{}, fmt.Errorf("uid: midpoint: hi < lo: %w", ErrInvalidRange)
	}
	mid := (lo.ToUint64() + hi.ToUint64()) / 2
	return FromUint64(mid), nil
}

// InRange reports whether lo <= u <= hi.
func InRange(u, lo, hi UID) bool {
	return Cmp(u, lo) >= 0 && Cmp(u, hi) <= 0
}

// Encode writes the UID's 6-byte wire form: 2 big-endian bytes of
// manufacturer then 4 big-endian bytes of device.
func (u UID) Encode() [6]byte {
	var b [6]byte
	binary.BigEndian.PutUint16(b[0:2], u.Manufacturer)
	binary.BigEndian.PutUint32(b[2:6], u.Device)
	return b
}

// Decode parses a 6-byte wire-form UID.
func Decode(b []byte) (UID, error) {
	if len(b) != 6 {
		return UID{}, fmt.Errorf("uid: decode: got %d bytes: %w", len(b), ErrInvalidLength)
	}
	return UID{
		Manufacturer: binary.BigEndian.Uint16(b[0:2]),
		Device:       binary.BigEndian.Uint32(b[2:6]),
	}, nil
}

// String formats the UID as "%04x:%08x".
func (u UID) String() string {
	return fmt.Sprintf("%04x:%08x", u.Manufacturer, u.Device)
}

// Parse parses a "%04x:%08x"-style string. Exactly one ':' is required and
// both fields must be valid hex.
func Parse(s string) (UID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return UID{}, fmt.Errorf("uid: parse %q: %w", s, ErrInvalidFormat)
	}
	manu, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return UID{}, fmt.Errorf("uid: parse manufacturer %q: %w", parts[0], err)
	}
	dev, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return UID{}, fmt.Errorf("uid: parse device %q: %w", parts[1], err)
	}
	return UID{Manufacturer: uint16(manu), Device: uint32(dev)}, nil
}
