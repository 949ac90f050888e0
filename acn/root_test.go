package acn

import (
	"bytes"
	"testing"
)

func TestBuildParseRoundtrip(t *testing.T) {
	cid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	data := []byte("hello rdmnet")

	pkt := Build(0x00000003, data, cid)
	got, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Vector != 0x00000003 {
		t.Errorf("vector = %#x", got.Vector)
	}
	if got.CID != cid {
		t.Errorf("cid mismatch")
	}
	if !bytes.Equal(got.Payload, data) {
		t.Errorf("payload mismatch: %v != %v", got.Payload, data)
	}
}

func TestBuildGeneratesRandomCIDWhenZero(t *testing.T) {
	pkt := Build(1, []byte("x"), [16]byte{})
	got, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.CID == ([16]byte{}) {
		t.Error("expected a random, non-zero CID")
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	pkt := Build(1, []byte("x"), [16]byte{1})
	pkt = append(pkt, 0xFF)
	if _, err := Parse(pkt); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestParseRejectsBadFlags(t *testing.T) {
	pkt := Build(1, []byte("x"), [16]byte{1})
	pkt[16] = 0x00
	if _, err := Parse(pkt); err == nil {
		t.Fatal("expected error for bad flags nibble")
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	pkt := Build(1, []byte("hello"), [16]byte{1})
	if _, err := Parse(pkt[:len(pkt)-2]); err == nil {
		t.Fatal("expected error for truncated packet")
	}
}

func TestExtractPacketsMultipleAndRemainder(t *testing.T) {
	cid := [16]byte{1}
	p1 := Build(1, []byte("one"), cid)
	p2 := Build(2, []byte("two"), cid)
	p3 := Build(3, []byte("three"), cid)
	partial := p3[:len(p3)-3]

	stream := append(append(append([]byte{}, p1...), p2...), partial...)

	packets, remainder := ExtractPackets(stream)
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if !bytes.Equal(remainder, partial) {
		t.Errorf("remainder mismatch: got %d bytes, want %d", len(remainder), len(partial))
	}
}

func TestExtractPacketsExactNoRemainder(t *testing.T) {
	cid := [16]byte{1}
	stream := append(Build(1, []byte("a"), cid), Build(2, []byte("b"), cid)...)

	packets, remainder := ExtractPackets(stream)
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if len(remainder) != 0 {
		t.Errorf("expected empty remainder, got %d bytes", len(remainder))
	}
}
