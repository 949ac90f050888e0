package artnet

import "testing"

func TestParseTodDataEmpty(t *testing.T) {
	if got := parseTodData(make([]byte, 10)); got != nil {
		t.Errorf("expected nil for short buffer, got %v", got)
	}
}

func TestBuildArtTodRequestHeader(t *testing.T) {
	pkt := buildArtTodRequest(NewPortAddress(1))
	if len(pkt) != 15 {
		t.Fatalf("unexpected length %d", len(pkt))
	}
	if !bytesEqualArtID(pkt) {
		t.Error("missing Art-Net ID header")
	}
}

func bytesEqualArtID(data []byte) bool {
	for i := 0; i < 8; i++ {
		if data[i] != ArtNetID[i] {
			return false
		}
	}
	return true
}
