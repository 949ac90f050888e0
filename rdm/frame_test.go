package rdm

import (
	"bytes"
	"testing"

	"github.com/gopatchy/dmxnet/uid"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	f := Frame{
		Destination:    uid.New(0x1234, 0x00000001),
		Source:         uid.New(0x4321, 0x00000002),
		TransactionNum: 7,
		PortOrResponse: 1,
		MessageCount:   0,
		SubDevice:      0,
		CommandClass:   CCGetCommand,
		PID:            0x0060,
		ParameterData:  []byte{1, 2, 3, 4},
	}

	buf, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Destination != f.Destination || got.Source != f.Source {
		t.Errorf("uid mismatch: %+v", got)
	}
	if !bytes.Equal(got.ParameterData, f.ParameterData) {
		t.Errorf("parameter data mismatch: %v != %v", got.ParameterData, f.ParameterData)
	}
	if got.PID != f.PID || got.CommandClass != f.CommandClass {
		t.Errorf("field mismatch: %+v", got)
	}
}

func TestEncodeChecksumMatchesSum(t *testing.T) {
	f := Frame{
		Destination:  uid.New(1, 1),
		Source:       uid.New(2, 2),
		CommandClass: CCGetCommand,
		PID:          0x0060,
	}
	buf, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	msgLen := int(buf[2])
	var sum uint32
	for _, b := range buf[:msgLen] {
		sum += uint32(b)
	}
	want := uint16(sum & 0xFFFF)
	got := uint16(buf[msgLen])<<8 | uint16(buf[msgLen+1])
	if got != want {
		t.Errorf("checksum = %04x, want %04x", got, want)
	}
}

func TestEncodeRejectsOversizedParameterData(t *testing.T) {
	f := Frame{ParameterData: make([]byte, 300)}
	if _, err := Encode(f); err == nil {
		t.Fatal("expected error for oversized PDL")
	}
}

func TestDecodeRejectsBadStartCode(t *testing.T) {
	buf, _ := Encode(Frame{Destination: uid.New(1, 1), Source: uid.New(2, 2)})
	buf[0] = 0x00
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error for bad start code")
	}
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	buf, _ := Encode(Frame{Destination: uid.New(1, 1), Source: uid.New(2, 2)})
	if _, err := Decode(buf[:len(buf)-5]); err == nil {
		t.Fatal("expected error for truncated buffer")
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	buf, _ := Encode(Frame{Destination: uid.New(1, 1), Source: uid.New(2, 2)})
	buf[len(buf)-1] ^= 0xFF
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error for bad checksum")
	}
}

func TestDecodeRejectsBadPDL(t *testing.T) {
	buf, _ := Encode(Frame{Destination: uid.New(1, 1), Source: uid.New(2, 2), ParameterData: []byte{1, 2}})
	buf[23] = 250 // PDL exceeds remaining message length and the 231 cap
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error for bad PDL")
	}
}
