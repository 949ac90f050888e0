// Package artnet implements the Art-Net 4 wire protocol: packet builders
// and parsers, a UDP sender, a UDP receiver, node discovery, and an
// Art-Net-carried RDM client.
package artnet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Port is the standard Art-Net UDP port.
const Port = 6454

// ProtocolVersion is the Art-Net protocol version carried in every packet.
const ProtocolVersion = 14

// OpCodes used by this package. Additional opcodes are accepted by the
// parser for forward compatibility but are not otherwise interpreted.
const (
	OpPoll       = 0x2000
	OpPollReply  = 0x2100
	OpDiagData   = 0x2300
	OpCommand    = 0x2400
	OpDmx        = 0x5000
	OpSync       = 0x5200
	OpTodRequest = 0x8000
	OpTodData    = 0x8100
	OpTodControl = 0x8200
	OpRdm        = 0x8300
	OpTimeCode   = 0x9700
	OpTrigger    = 0x9900
)

// ArtNetID is the 8-byte packet identifier common to every Art-Net packet.
var ArtNetID = [8]byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

var (
	ErrInvalidHeader  = errors.New("artnet: invalid header")
	ErrUnknownOpCode  = errors.New("artnet: unknown opcode")
	ErrPacketTooShort = errors.New("artnet: packet too short")
	ErrInvalidLength  = errors.New("artnet: invalid length")
)

// TalkToMe bits for ArtPoll, per §4.1.
const (
	TalkToMeDiagnostics      = 1 << 1
	TalkToMeUnicast          = 1 << 2
	TalkToMeOnChange         = 1 << 3
	TalkToMeInputOnChange    = 1 << 4
	TalkToMeIEEE             = 1 << 5
	TalkToMeNodeReportOnData = 1 << 6
)

// PortAddress decomposes a 1-based universe index into the Art-Net
// Net/Sub-Net/Universe triple, per §3: subtract 1, then Net is bits 14-8
// (7 bits), SubNet is bits 7-4 (4 bits), Universe is bits 3-0 (4 bits).
type PortAddress struct {
	Net      uint8 // 0-127
	SubNet   uint8 // 0-15
	Universe uint8 // 0-15
}

// NewPortAddress converts a 1-based universe number into a PortAddress.
func NewPortAddress(universe1Based int) PortAddress {
	raw := uint16(universe1Based - 1)
	return PortAddress{
		Net:      uint8((raw >> 8) & 0x7F),
		SubNet:   uint8((raw >> 4) & 0x0F),
		Universe: uint8(raw & 0x0F),
	}
}

// Number reconstructs the 1-based universe number from a PortAddress.
func (p PortAddress) Number() int {
	return int((uint16(p.Net&0x7F)<<8)|(uint16(p.SubNet&0x0F)<<4)|uint16(p.Universe&0x0F)) + 1
}

// SubUni packs SubNet into the high nibble and Universe into the low
// nibble, as it appears on the wire.
func (p PortAddress) SubUni() byte {
	return (p.SubNet&0x0F)<<4 | (p.Universe & 0x0F)
}

func subUniToPortAddress(net, subUni uint8) PortAddress {
	return PortAddress{
		Net:      net & 0x7F,
		SubNet:   (subUni >> 4) & 0x0F,
		Universe: subUni & 0x0F,
	}
}

// DMXPacket is a decoded ArtDmx (OpDmx) packet.
type DMXPacket struct {
	Sequence uint8
	Physical uint8
	Net      uint8
	SubNet   uint8
	Universe int // 1-based
	Length   int
	Data     []byte
}

// ArtDMXOptions configures BuildArtDMX.
type ArtDMXOptions struct {
	Universe int // 1-based
	Sequence uint8
	Physical uint8
	Data     []byte
	// Length overrides the encoded length; if zero, len(Data) is used.
	// The final length is min(override or len(Data), 512).
	Length int
}

// BuildArtDMX builds an ArtDmx packet: header(0x5000) + sequence +
// physical + SubUni + Net + BE16 length + data.
func BuildArtDMX(opts ArtDMXOptions) []byte {
	n := opts.Length
	if n == 0 {
		n = len(opts.Data)
	}
	if n > 512 {
		n = 512
	}

	pa := NewPortAddress(opts.Universe)

	buf := make([]byte, 18+n)
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpDmx)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = opts.Sequence
	buf[13] = opts.Physical
	buf[14] = pa.SubUni()
	buf[15] = pa.Net
	binary.BigEndian.PutUint16(buf[16:18], uint16(n))
	copy(buf[18:], opts.Data)

	return buf
}

// ParseArtDMX parses an ArtDmx packet. It returns (nil, nil) when the
// header or opcode do not match, and an error for a recognized-but-
// malformed packet.
func ParseArtDMX(data []byte) (*DMXPacket, error) {
	if len(data) < 10 || !bytes.Equal(data[:8], ArtNetID[:]) {
		return nil, nil
	}
	if binary.LittleEndian.Uint16(data[8:10]) != OpDmx {
		return nil, nil
	}
	if len(data) < 18 {
		return nil, fmt.Errorf("artnet: parse ArtDmx: %w", ErrPacketTooShort)
	}

	length := int(binary.BigEndian.Uint16(data[16:18]))
	if length < 2 || length > 512 {
		return nil, fmt.Errorf("artnet: parse ArtDmx: length %d out of range [2,512]: %w", length, ErrInvalidLength)
	}
	if len(data) < 18+length {
		return nil, fmt.Errorf("artnet: parse ArtDmx: %w", ErrPacketTooShort)
	}

	pa := subUniToPortAddress(data[15], data[14])
	out := make([]byte, length)
	copy(out, data[18:18+length])

	return &DMXPacket{
		Sequence: data[12],
		Physical: data[13],
		Net:      pa.Net,
		SubNet:   pa.SubNet,
		Universe: pa.Number(),
		Length:   length,
		Data:     out,
	}, nil
}

// BuildArtPoll builds an ArtPoll packet: header + TalkToMe + priority.
func BuildArtPoll(flags, priority uint8) []byte {
	buf := make([]byte, 14)
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpPoll)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = flags
	buf[13] = priority
	return buf
}

// BuildArtSync builds an ArtSync packet (OpSync).
func BuildArtSync() []byte {
	buf := make([]byte, 14)
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpSync)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = 0
	buf[13] = 0
	return buf
}

// DiagPriority levels for ArtDiagData.
const (
	DpLow      = 0x10
	DpMed      = 0x40
	DpHigh     = 0x80
	DpCritical = 0xE0
	DpVolatile = 0xF0
)

// BuildArtDiagData builds an ArtDiagData packet (OpDiagData): header +
// filler + priority + a null-terminated ASCII diagnostic string.
func BuildArtDiagData(priority uint8, logicalPort uint8, text string) []byte {
	payload := []byte(text)
	if len(payload) == 0 || payload[len(payload)-1] != 0 {
		payload = append(payload, 0)
	}
	buf := make([]byte, 16+len(payload))
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpDiagData)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = 0 // filler1
	buf[13] = priority
	buf[14] = logicalPort
	buf[15] = 0 // filler2
	copy(buf[16:], payload)
	return buf
}

// BuildArtTimeCode builds an ArtTimeCode packet (OpTimeCode).
func BuildArtTimeCode(frames, seconds, minutes, hours, typ uint8) []byte {
	buf := make([]byte, 19)
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpTimeCode)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[14] = frames
	buf[15] = seconds
	buf[16] = minutes
	buf[17] = hours
	buf[18] = typ
	return buf
}

// BuildArtCommand builds an ArtCommand packet (OpCommand) carrying an
// ESTA manufacturer code and a null-terminated command string.
func BuildArtCommand(estaMan uint16, command string) []byte {
	payload := []byte(command)
	if len(payload) == 0 || payload[len(payload)-1] != 0 {
		payload = append(payload, 0)
	}
	buf := make([]byte, 14+len(payload))
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpCommand)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	binary.BigEndian.PutUint16(buf[12:14], estaMan)
	copy(buf[14:], payload)
	return buf
}

// BuildArtTrigger builds an ArtTrigger packet (OpTrigger).
func BuildArtTrigger(oemCode uint16, key, subKey uint8, data []byte) []byte {
	if len(data) > 512 {
		data = data[:512]
	}
	buf := make([]byte, 18+len(data))
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpTrigger)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	binary.BigEndian.PutUint16(buf[14:16], oemCode)
	buf[16] = key
	buf[17] = subKey
	copy(buf[18:], data)
	return buf
}

// PollReplyOptions configures BuildArtPollReply.
type PollReplyOptions struct {
	IP         [4]byte
	Port       uint16
	ShortName  string
	LongName   string
	NodeReport string
	Universes  []PortAddress
	MAC        [6]byte
	Style      uint8
}

// BuildArtPollReply builds an ArtPollReply packet (OpPollReply) following
// the fixed 239-byte layout.
func BuildArtPollReply(opts PollReplyOptions) []byte {
	buf := make([]byte, 239)
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpPollReply)
	copy(buf[10:14], opts.IP[:])

	port := opts.Port
	if port == 0 {
		port = Port
	}
	binary.LittleEndian.PutUint16(buf[14:16], port)

	if len(opts.Universes) > 0 {
		buf[18] = opts.Universes[0].Net
		buf[19] = opts.Universes[0].SubNet
	}

	copy(buf[26:44], opts.ShortName)
	copy(buf[44:108], opts.LongName)
	copy(buf[108:172], opts.NodeReport)

	numPorts := len(opts.Universes)
	if numPorts > 4 {
		numPorts = 4
	}
	buf[173] = byte(numPorts)
	for i := 0; i < numPorts; i++ {
		buf[174+i] = 0xC0 // can output DMX
		buf[182+i] = 0x80 // data transmitted
		buf[190+i] = opts.Universes[i].Universe
	}

	buf[200] = opts.Style
	copy(buf[201:207], opts.MAC[:])

	return buf
}

// PollReplyPacket is a decoded ArtPollReply.
type PollReplyPacket struct {
	IP         [4]byte
	Port       uint16
	NetSwitch  uint8
	SubSwitch  uint8
	ShortName  string
	LongName   string
	NodeReport string
	NumPorts   int
	PortTypes  [4]byte
	SwOut      [4]byte
	MAC        [6]byte
	Style      uint8
}

// ParseArtPollReply parses an ArtPollReply packet.
func ParseArtPollReply(data []byte) (*PollReplyPacket, error) {
	if len(data) < 10 || !bytes.Equal(data[:8], ArtNetID[:]) {
		return nil, nil
	}
	if binary.LittleEndian.Uint16(data[8:10]) != OpPollReply {
		return nil, nil
	}
	if len(data) < 207 {
		return nil, fmt.Errorf("artnet: parse ArtPollReply: %w", ErrPacketTooShort)
	}

	pkt := &PollReplyPacket{
		Port:      binary.LittleEndian.Uint16(data[14:16]),
		NetSwitch: data[18],
		SubSwitch: data[19],
		Style:     data[200],
	}
	copy(pkt.IP[:], data[10:14])
	pkt.ShortName = trimNull(data[26:44])
	pkt.LongName = trimNull(data[44:108])
	pkt.NodeReport = trimNull(data[108:172])
	pkt.NumPorts = int(data[173])
	copy(pkt.PortTypes[:], data[174:178])
	copy(pkt.SwOut[:], data[190:194])
	copy(pkt.MAC[:], data[201:207])

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

// PollPacket is a decoded ArtPoll.
type PollPacket struct {
	Flags    uint8
	Priority uint8
}

// ParseArtPoll parses an ArtPoll packet.
func ParseArtPoll(data []byte) (*PollPacket, error) {
	if len(data) < 10 || !bytes.Equal(data[:8], ArtNetID[:]) {
		return nil, nil
	}
	if binary.LittleEndian.Uint16(data[8:10]) != OpPoll {
		return nil, nil
	}
	if len(data) < 14 {
		return nil, fmt.Errorf("artnet: parse ArtPoll: %w", ErrPacketTooShort)
	}
	return &PollPacket{Flags: data[12], Priority: data[13]}, nil
}
