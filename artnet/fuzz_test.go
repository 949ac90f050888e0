package artnet

import "testing"

func FuzzParseArtDMX(f *testing.F) {
	f.Add(BuildArtDMX(ArtDMXOptions{Universe: 1, Data: make([]byte, 512)}))
	f.Add(BuildArtDMX(ArtDMXOptions{Universe: 2048, Sequence: 200, Data: make([]byte, 2)}))
	f.Add([]byte{})
	f.Add(make([]byte, 18))

	f.Fuzz(func(t *testing.T, data []byte) {
		pkt, err := ParseArtDMX(data)
		if err != nil {
			return
		}
		if pkt == nil {
			return
		}
		if len(pkt.Data) != pkt.Length {
			t.Fatalf("data length %d != declared length %d", len(pkt.Data), pkt.Length)
		}
	})
}

func FuzzParseArtPollReply(f *testing.F) {
	f.Add(BuildArtPollReply(PollReplyOptions{ShortName: "n", LongName: "node"}))
	f.Add([]byte{})
	f.Add(make([]byte, 207))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = ParseArtPollReply(data)
	})
}
