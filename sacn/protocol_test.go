package sacn

import "testing"

func TestBuildParsePacketRoundtrip(t *testing.T) {
	cid := [16]byte{1, 2, 3, 4}
	raw := make([]byte, 512)
	raw[0], raw[1] = 255, 128

	pkt := BuildDataPacket(PacketOptions{
		Universe:        257,
		Sequence:        7,
		SourceName:      "node-dmx-test",
		CID:             cid,
		Priority:        120,
		Raw:             raw,
		UseRawDmxValues: true,
	})
	if len(pkt) != PacketLen {
		t.Fatalf("packet length = %d, want %d", len(pkt), PacketLen)
	}

	got, err := ParsePacket(pkt)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got.Universe != 257 || got.Sequence != 7 || got.Priority != 120 {
		t.Errorf("header mismatch: %+v", got)
	}
	if got.SourceName != "node-dmx-test" {
		t.Errorf("source name = %q", got.SourceName)
	}
	if got.Data[0] != 255 || got.Data[1] != 128 {
		t.Errorf("dmx data mismatch: %v", got.Data[:4])
	}
}

func TestBuildPacketPercentScaling(t *testing.T) {
	pkt := BuildDataPacket(PacketOptions{
		Universe: 1,
		Percent:  map[int]int{1: 100, 2: 50, 3: 0},
	})
	got, err := ParsePacket(pkt)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got.Data[0] != 255 {
		t.Errorf("100%% -> %d, want 255", got.Data[0])
	}
	if got.Data[2] != 0 {
		t.Errorf("0%% -> %d, want 0", got.Data[2])
	}
}

func TestBuildPacketWireLayout(t *testing.T) {
	pkt := BuildDataPacket(PacketOptions{
		Universe:   1,
		Sequence:   7,
		SourceName: "node-dmx-test",
		Priority:   120,
		Percent:    map[int]int{1: 100, 2: 50},
	})
	if len(pkt) != 638 {
		t.Fatalf("packet length = %d, want 638", len(pkt))
	}
	if pkt[108] != 120 {
		t.Errorf("priority byte = %d, want 120", pkt[108])
	}
	if pkt[111] != 7 {
		t.Errorf("sequence byte = %d, want 7", pkt[111])
	}
	if pkt[113] != 0 || pkt[114] != 1 {
		t.Errorf("universe bytes = %d %d, want 0 1", pkt[113], pkt[114])
	}
	if pkt[126] != 255 {
		t.Errorf("channel 1 = %d, want 255", pkt[126])
	}
	if pkt[127] != 127 {
		t.Errorf("channel 2 = %d, want 127", pkt[127])
	}
}

func TestParsePacketRejectsBadIdentifier(t *testing.T) {
	pkt := BuildDataPacket(PacketOptions{Universe: 1})
	pkt[4] = 0
	if _, err := ParsePacket(pkt); err == nil {
		t.Fatal("expected error for bad ACN identifier")
	}
}

func TestParsePacketRejectsBadVector(t *testing.T) {
	pkt := BuildDataPacket(PacketOptions{Universe: 1})
	pkt[21] = 0xFF
	if _, err := ParsePacket(pkt); err == nil {
		t.Fatal("expected error for bad root vector")
	}
}

func TestParsePacketRejectsTruncated(t *testing.T) {
	pkt := BuildDataPacket(PacketOptions{Universe: 1})
	if _, err := ParsePacket(pkt[:100]); err == nil {
		t.Fatal("expected error for truncated packet")
	}
}

func TestMulticastAddrFormat(t *testing.T) {
	addr, err := MulticastAddr(256)
	if err != nil {
		t.Fatalf("MulticastAddr(256): %v", err)
	}
	if addr.IP.String() != "239.255.1.0" {
		t.Errorf("multicast addr = %s, want 239.255.1.0", addr.IP.String())
	}

	addr, err = MulticastAddr(1)
	if err != nil {
		t.Fatalf("MulticastAddr(1): %v", err)
	}
	if addr.IP.String() != "239.255.0.1" {
		t.Errorf("multicast addr = %s, want 239.255.0.1", addr.IP.String())
	}
}

func TestMulticastAddrRejectsInvalidUniverse(t *testing.T) {
	for _, u := range []uint16{0, 64000, 65535} {
		if _, err := MulticastAddr(u); err == nil {
			t.Errorf("MulticastAddr(%d) expected error", u)
		}
	}
}

func TestValidateUniverse(t *testing.T) {
	if err := ValidateUniverse(0); err == nil {
		t.Error("expected error for universe 0")
	}
	if err := ValidateUniverse(64214); err != nil {
		t.Errorf("discovery universe should be valid: %v", err)
	}
	if err := ValidateUniverse(64000); err == nil {
		t.Error("expected error for universe 64000")
	}
}
