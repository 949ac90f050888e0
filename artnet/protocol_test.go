package artnet

import (
	"bytes"
	"testing"
)

func TestPortAddressRoundtrip(t *testing.T) {
	for _, universe := range []int{1, 2, 16, 17, 256, 2048} {
		pa := NewPortAddress(universe)
		if got := pa.Number(); got != universe {
			t.Errorf("universe %d: roundtrip got %d", universe, got)
		}
	}
}

func TestPortAddressSubUni(t *testing.T) {
	pa := PortAddress{Net: 1, SubNet: 0xA, Universe: 0x3}
	if got := pa.SubUni(); got != 0xA3 {
		t.Errorf("SubUni() = %#x, want 0xa3", got)
	}
}

func TestBuildParseArtDMXRoundtrip(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	pkt := BuildArtDMX(ArtDMXOptions{Universe: 5, Sequence: 7, Physical: 1, Data: data})

	got, err := ParseArtDMX(pkt)
	if err != nil {
		t.Fatalf("ParseArtDMX: %v", err)
	}
	if got == nil {
		t.Fatal("ParseArtDMX returned nil packet for a valid ArtDmx")
	}
	if got.Universe != 5 || got.Sequence != 7 || got.Physical != 1 {
		t.Errorf("header mismatch: %+v", got)
	}
	if !bytes.Equal(got.Data, data) {
		t.Error("data mismatch")
	}
}

func TestParseArtDMXHighUniverse(t *testing.T) {
	pkt := BuildArtDMX(ArtDMXOptions{Universe: 257, Sequence: 11, Physical: 2, Data: []byte{1, 2, 3, 4}})
	got, err := ParseArtDMX(pkt)
	if err != nil {
		t.Fatalf("ParseArtDMX: %v", err)
	}
	if got.Sequence != 11 || got.Physical != 2 {
		t.Errorf("header mismatch: %+v", got)
	}
	if got.Net != 1 || got.SubNet != 0 {
		t.Errorf("port address = net %d subnet %d, want 1 0", got.Net, got.SubNet)
	}
	if got.Universe != 257 || got.Length != 4 {
		t.Errorf("universe/length = %d/%d, want 257/4", got.Universe, got.Length)
	}
	if !bytes.Equal(got.Data, []byte{1, 2, 3, 4}) {
		t.Errorf("data = %v", got.Data)
	}
}

func TestParseArtDMXRejectsOtherOpcode(t *testing.T) {
	pkt := BuildArtPoll(0, 0)
	got, err := ParseArtDMX(pkt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for non-ArtDmx packet")
	}
}

func TestParseArtDMXRejectsTruncated(t *testing.T) {
	pkt := BuildArtDMX(ArtDMXOptions{Universe: 1, Data: make([]byte, 10)})
	if _, err := ParseArtDMX(pkt[:len(pkt)-5]); err == nil {
		t.Fatal("expected error for truncated ArtDmx")
	}
}

func TestParseArtDMXRejectsBadLength(t *testing.T) {
	pkt := BuildArtDMX(ArtDMXOptions{Universe: 1, Data: make([]byte, 10)})
	pkt[16] = 0
	pkt[17] = 0
	if _, err := ParseArtDMX(pkt); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestBuildParseArtPollReplyRoundtrip(t *testing.T) {
	opts := PollReplyOptions{
		IP:         [4]byte{10, 0, 0, 5},
		ShortName:  "node1",
		LongName:   "a test node",
		Universes:  []PortAddress{NewPortAddress(1), NewPortAddress(2)},
		Style:      0,
	}
	pkt := BuildArtPollReply(opts)

	got, err := ParseArtPollReply(pkt)
	if err != nil {
		t.Fatalf("ParseArtPollReply: %v", err)
	}
	if got.ShortName != "node1" || got.LongName != "a test node" {
		t.Errorf("name mismatch: %+v", got)
	}
	if got.IP != opts.IP {
		t.Errorf("ip mismatch: %v != %v", got.IP, opts.IP)
	}
	if got.NumPorts != 2 {
		t.Errorf("num ports = %d, want 2", got.NumPorts)
	}
}

func TestBuildParseArtPollRoundtrip(t *testing.T) {
	pkt := BuildArtPoll(TalkToMeOnChange, DpHigh)
	got, err := ParseArtPoll(pkt)
	if err != nil {
		t.Fatalf("ParseArtPoll: %v", err)
	}
	if got.Flags != TalkToMeOnChange || got.Priority != DpHigh {
		t.Errorf("got %+v", got)
	}
}

func TestBuildArtDiagDataNullTerminated(t *testing.T) {
	pkt := BuildArtDiagData(DpLow, 0, "hello")
	if pkt[len(pkt)-1] != 0 {
		t.Error("expected trailing null byte")
	}
}
