// Package sacn implements the E1.31 (sACN) wire protocol: a combined
// packet builder/parser, a stateful UDP sender with an optional refresh
// loop, a multicast receiver, and a packet-capture receive path.
package sacn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

const (
	// Port is the standard sACN UDP port.
	Port = 5568

	// DiscoveryUniverse is the special universe address reserved for
	// universe-discovery packets (E1.31 §8).
	DiscoveryUniverse = 64214

	// HeaderLen is the fixed Root+Framing+DMP header length.
	HeaderLen = 126
	// DMXPayloadLen is the number of DMX slot bytes, always sent in full
	// regardless of how many channels the caller actually set.
	DMXPayloadLen = 512
	// PacketLen is the total length of every data packet this package
	// builds: header plus the full DMX payload.
	PacketLen = HeaderLen + DMXPayloadLen
)

// Vectors and fixed field values, per E1.31.
const (
	VectorRootE131Data      = 0x00000004
	VectorRootE131Extended  = 0x00000008
	VectorE131DataPacket    = 0x00000002
	VectorE131Discovery     = 0x00000002
	VectorDMPSetProperty    = 0x02
	VectorUniverseDiscovery = 0x00000001

	dmpAddressType = 0xA1

	rootFlagsLength    = 0x7000
	framingFlagsLength = 0x7000
	dmpFlagsLength     = 0x7000
)

var acnPacketIdentifier = [12]byte{
	0x41, 0x53, 0x43, 0x2d, 0x45, 0x31, 0x2e, 0x31, 0x37, 0x00, 0x00, 0x00,
}

var (
	ErrPacketTooShort    = errors.New("sacn: packet too short")
	ErrInvalidIdentifier = errors.New("sacn: invalid ACN packet identifier")
	ErrInvalidVector     = errors.New("sacn: invalid vector")
	ErrInvalidField      = errors.New("sacn: invalid fixed field")
	ErrInvalidUniverse   = errors.New("sacn: universe out of range")
)

// ValidateUniverse checks that universe is in [1,63999] or the special
// discovery universe.
func ValidateUniverse(universe uint16) error {
	if universe == DiscoveryUniverse {
		return nil
	}
	if universe < 1 || universe > 63999 {
		return fmt.Errorf("sacn: universe %d: %w", universe, ErrInvalidUniverse)
	}
	return nil
}

// PacketOptions configures Build.
type PacketOptions struct {
	Universe   uint16
	Sequence   uint8
	SourceName string
	CID        [16]byte
	Priority   uint8 // default 100 when zero
	SyncAddr   uint16

	// Percent is a sparse channel(1-based)->percentage[0,100] map. If
	// non-nil it takes precedence over Raw.
	Percent map[int]int
	// Raw is a dense byte buffer, used when Percent is nil or
	// UseRawDmxValues is true.
	Raw []byte
	// UseRawDmxValues selects Raw over Percent-based scaling even when
	// both are supplied; Percent scaling is percent*255/100 truncated, Raw is
	// copied byte for byte (clamped to the channel range implicitly by
	// caller).
	UseRawDmxValues bool
}

// Packet is a decoded sACN data packet.
type Packet struct {
	Universe   uint16
	Sequence   uint8
	SourceName string
	CID        [16]byte
	Priority   uint8
	SyncAddr   uint16
	Options    uint8
	Data       [512]byte
}

// BuildDataPacket assembles a full 638-byte sACN data packet from opts.
func BuildDataPacket(opts PacketOptions) []byte {
	var dmx [512]byte
	if opts.UseRawDmxValues || opts.Percent == nil {
		n := len(opts.Raw)
		if n > 512 {
			n = 512
		}
		copy(dmx[:n], opts.Raw[:n])
	} else {
		for ch, pct := range opts.Percent {
			if ch < 1 || ch > 512 {
				continue
			}
			if pct < 0 {
				pct = 0
			}
			if pct > 100 {
				pct = 100
			}
			dmx[ch-1] = scalePercent(pct)
		}
	}

	priority := opts.Priority
	if priority == 0 {
		priority = 100
	}

	buf := make([]byte, PacketLen)

	binary.BigEndian.PutUint16(buf[0:2], 0x0010)
	binary.BigEndian.PutUint16(buf[2:4], 0x0000)
	copy(buf[4:16], acnPacketIdentifier[:])
	binary.BigEndian.PutUint16(buf[16:18], uint16(rootFlagsLength|(PacketLen-16)&0x0FFF))
	binary.BigEndian.PutUint32(buf[18:22], VectorRootE131Data)
	copy(buf[22:38], opts.CID[:])

	binary.BigEndian.PutUint16(buf[38:40], uint16(framingFlagsLength|(PacketLen-38)&0x0FFF))
	binary.BigEndian.PutUint32(buf[40:44], VectorE131DataPacket)
	name := opts.SourceName
	if len(name) > 64 {
		name = name[:64]
	}
	copy(buf[44:108], name)
	buf[108] = priority
	binary.BigEndian.PutUint16(buf[109:111], opts.SyncAddr)
	buf[111] = opts.Sequence
	buf[112] = 0
	binary.BigEndian.PutUint16(buf[113:115], opts.Universe)

	binary.BigEndian.PutUint16(buf[115:117], uint16(dmpFlagsLength|(PacketLen-115)&0x0FFF))
	buf[117] = VectorDMPSetProperty
	buf[118] = dmpAddressType
	binary.BigEndian.PutUint16(buf[119:121], 0)
	binary.BigEndian.PutUint16(buf[121:123], 1)
	binary.BigEndian.PutUint16(buf[123:125], uint16(DMXPayloadLen+1))
	buf[125] = 0
	copy(buf[126:], dmx[:])

	return buf
}

func scalePercent(pct int) byte {
	v := pct * 255 / 100
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// ParsePacket strictly validates every fixed field in the header (the
// preamble/postamble/PID, both vectors, DMP address type 0xA1, first
// address 0, address increment 1, start code 0) and returns the decoded
// packet.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("sacn: parse: %w", ErrPacketTooShort)
	}
	if binary.BigEndian.Uint16(data[0:2]) != 0x0010 || binary.BigEndian.Uint16(data[2:4]) != 0 {
		return nil, fmt.Errorf("sacn: parse: bad preamble/postamble: %w", ErrInvalidField)
	}
	for i, b := range acnPacketIdentifier {
		if data[4+i] != b {
			return nil, fmt.Errorf("sacn: parse: %w", ErrInvalidIdentifier)
		}
	}
	if binary.BigEndian.Uint32(data[18:22]) != VectorRootE131Data {
		return nil, fmt.Errorf("sacn: parse: root vector: %w", ErrInvalidVector)
	}
	if binary.BigEndian.Uint32(data[40:44]) != VectorE131DataPacket {
		return nil, fmt.Errorf("sacn: parse: framing vector: %w", ErrInvalidVector)
	}
	if data[117] != VectorDMPSetProperty {
		return nil, fmt.Errorf("sacn: parse: dmp vector: %w", ErrInvalidVector)
	}
	if data[118] != dmpAddressType {
		return nil, fmt.Errorf("sacn: parse: dmp address type: %w", ErrInvalidField)
	}
	if binary.BigEndian.Uint16(data[119:121]) != 0 {
		return nil, fmt.Errorf("sacn: parse: dmp first address: %w", ErrInvalidField)
	}
	if binary.BigEndian.Uint16(data[121:123]) != 1 {
		return nil, fmt.Errorf("sacn: parse: dmp address increment: %w", ErrInvalidField)
	}
	if data[125] != 0 {
		return nil, fmt.Errorf("sacn: parse: dmx start code: %w", ErrInvalidField)
	}

	propCount := binary.BigEndian.Uint16(data[123:125])
	if propCount < 1 {
		return nil, fmt.Errorf("sacn: parse: property value count: %w", ErrInvalidField)
	}
	dmxLen := int(propCount) - 1
	if dmxLen > 512 {
		dmxLen = 512
	}
	if len(data) < HeaderLen+dmxLen {
		return nil, fmt.Errorf("sacn: parse: %w", ErrPacketTooShort)
	}

	pkt := &Packet{
		Universe: binary.BigEndian.Uint16(data[113:115]),
		Sequence: data[111],
		Priority: data[108],
		SyncAddr: binary.BigEndian.Uint16(data[109:111]),
		Options:  data[112],
	}
	copy(pkt.CID[:], data[22:38])
	pkt.SourceName = trimNull(data[44:108])
	copy(pkt.Data[:], data[126:126+dmxLen])

	return pkt, nil
}

func trimNull(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// MulticastAddr returns the multicast group for universe:
// 239.255.<high8>.<low8>. Universe 0 and out-of-range universes fail.
func MulticastAddr(universe uint16) (*net.UDPAddr, error) {
	if err := ValidateUniverse(universe); err != nil {
		return nil, err
	}
	return multicastAddr(universe), nil
}

func multicastAddr(universe uint16) *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(239, 255, byte(universe>>8), byte(universe&0xff)),
		Port: Port,
	}
}

// DiscoveryAddr is the multicast group used for universe-discovery
// packets (universe 64214).
var DiscoveryAddr = multicastAddr(DiscoveryUniverse)

// BuildDiscoveryPacket assembles one page of a universe-discovery
// packet (E1.31 §8), listing up to 512 universes per page.
func BuildDiscoveryPacket(sourceName string, cid [16]byte, page, lastPage uint8, universes []uint16) []byte {
	universeCount := len(universes)
	if universeCount > 512 {
		universeCount = 512
	}

	pktLen := 120 + universeCount*2
	buf := make([]byte, pktLen)

	binary.BigEndian.PutUint16(buf[0:2], 0x0010)
	binary.BigEndian.PutUint16(buf[2:4], 0x0000)
	copy(buf[4:16], acnPacketIdentifier[:])
	binary.BigEndian.PutUint16(buf[16:18], uint16(rootFlagsLength|(pktLen-16)&0x0FFF))
	binary.BigEndian.PutUint32(buf[18:22], VectorRootE131Extended)
	copy(buf[22:38], cid[:])

	binary.BigEndian.PutUint16(buf[38:40], uint16(framingFlagsLength|(pktLen-38)&0x0FFF))
	binary.BigEndian.PutUint32(buf[40:44], VectorE131Discovery)
	name := sourceName
	if len(name) > 64 {
		name = name[:64]
	}
	copy(buf[44:108], name)
	binary.BigEndian.PutUint32(buf[108:112], 0)

	discoveryLen := pktLen - 112
	binary.BigEndian.PutUint16(buf[112:114], uint16(rootFlagsLength|discoveryLen&0x0FFF))
	binary.BigEndian.PutUint32(buf[114:118], VectorUniverseDiscovery)
	buf[118] = page
	buf[119] = lastPage
	for i := 0; i < universeCount; i++ {
		binary.BigEndian.PutUint16(buf[120+i*2:122+i*2], universes[i])
	}

	return buf
}
