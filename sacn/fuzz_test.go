package sacn

import "testing"

func FuzzParsePacket(f *testing.F) {
	cid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	f.Add(BuildDataPacket(PacketOptions{Universe: 1, SourceName: "test", CID: cid, Raw: make([]byte, 512)}))
	f.Add(BuildDataPacket(PacketOptions{Universe: 1, SourceName: "test", CID: cid, Raw: make([]byte, 100)}))
	f.Add(BuildDataPacket(PacketOptions{Universe: 63999, Sequence: 255, SourceName: "long source name here", CID: cid, Raw: make([]byte, 512)}))
	f.Add([]byte{})
	f.Add(make([]byte, 125))
	f.Add(make([]byte, 126))
	f.Add(make([]byte, 638))

	f.Fuzz(func(t *testing.T, data []byte) {
		pkt, err := ParsePacket(data)
		if err != nil {
			return
		}
		if len(pkt.Data) != 512 {
			t.Fatalf("dmx data should be 512 bytes, got %d", len(pkt.Data))
		}
	})
}

func FuzzBuildParseRoundtrip(f *testing.F) {
	f.Add(uint16(1), uint8(0), "test", make([]byte, 512))
	f.Add(uint16(63999), uint8(255), "source", make([]byte, 100))
	f.Add(uint16(100), uint8(128), "", make([]byte, 0))
	f.Add(uint16(1), uint8(0), "a very long source name that exceeds normal limits", make([]byte, 512))

	f.Fuzz(func(t *testing.T, universe uint16, seq uint8, sourceName string, dmxInput []byte) {
		if universe < 1 || universe > 63999 {
			return
		}
		cid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
		packet := BuildDataPacket(PacketOptions{
			Universe:        universe,
			Sequence:        seq,
			SourceName:      sourceName,
			CID:             cid,
			Raw:             dmxInput,
			UseRawDmxValues: true,
		})
		pkt, err := ParsePacket(packet)
		if err != nil {
			t.Fatalf("failed to parse packet we just built: %v", err)
		}
		if pkt.Universe != universe {
			t.Fatalf("universe mismatch: sent %d, got %d", universe, pkt.Universe)
		}
		expectedLen := len(dmxInput)
		if expectedLen > 512 {
			expectedLen = 512
		}
		for i := 0; i < expectedLen; i++ {
			if pkt.Data[i] != dmxInput[i] {
				t.Fatalf("dmx data mismatch at %d", i)
			}
		}
	})
}
