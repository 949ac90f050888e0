package artnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gopatchy/dmxnet/rdm"
	"github.com/gopatchy/dmxnet/uid"
)

// rdmStartCode precedes every RDM frame carried over ArtRdm, mirroring
// the byte that would appear on a physical RS-485 bus.
const rdmStartCode = 0xCC

var (
	// ErrRdmTimeout is returned when no ArtRdm response arrived within
	// the client's timeout.
	ErrRdmTimeout = errors.New("artnet: rdm transaction timed out")
)

// RDMClient drives RDM traffic and node discovery over an Art-Net
// universe using ArtTodRequest/ArtTodData/ArtRdm.
type RDMClient struct {
	sender  *Sender
	dest    *net.UDPAddr
	timeout time.Duration

	mu      sync.Mutex
	todWait []chan []byte
	rdmWait []chan []byte
}

// NewRDMClient builds a client that sends to dest (typically the
// broadcast address) and waits up to timeout for responses.
func NewRDMClient(sender *Sender, dest *net.UDPAddr, timeout time.Duration) *RDMClient {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &RDMClient{sender: sender, dest: dest, timeout: timeout}
}

// HandleRaw feeds opcodes observed by a Receiver/PcapReceiver into the
// client so it can resolve in-flight requests.
func (c *RDMClient) HandleRaw(src *net.UDPAddr, opcode uint16, data []byte) {
	switch opcode {
	case OpTodData:
		c.deliver(&c.todWait, data, 14)
	case OpRdm:
		c.deliver(&c.rdmWait, data, 15)
	}
}

func (c *RDMClient) deliver(waiters *[]chan []byte, data []byte, minLen int) {
	if len(data) < minLen {
		return
	}
	c.mu.Lock()
	chs := *waiters
	*waiters = nil
	c.mu.Unlock()
	for _, ch := range chs {
		ch <- data
	}
}

// GetTod sends ArtTodRequest for universe and collects the UIDs reported
// by every ArtTodData packet received within the client's timeout.
func (c *RDMClient) GetTod(ctx context.Context, universe int) ([]uid.UID, error) {
	pa := NewPortAddress(universe)
	req := buildArtTodRequest(pa)

	ch := make(chan []byte, 8)
	c.mu.Lock()
	c.todWait = append(c.todWait, ch)
	c.mu.Unlock()

	if err := c.sender.SendTo(req, c.dest); err != nil {
		return nil, fmt.Errorf("artnet: send ArtTodRequest: %w", err)
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	var uids []uid.UID
	for {
		select {
		case <-ctx.Done():
			return uids, ctx.Err()
		case <-deadline.C:
			return uids, nil
		case data := <-ch:
			uids = append(uids, parseTodData(data)...)
		}
	}
}

func buildArtTodRequest(pa PortAddress) []byte {
	buf := make([]byte, 14)
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpTodRequest)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = pa.Net
	buf[13] = 1 // AddCount
	return append(buf, pa.SubUni())
}

func parseTodData(data []byte) []uid.UID {
	if len(data) < 25 {
		return nil
	}
	count := int(data[24])
	var out []uid.UID
	offset := 25
	for i := 0; i < count && offset+6 <= len(data); i++ {
		u, err := uid.Decode(data[offset : offset+6])
		if err == nil {
			out = append(out, u)
		}
		offset += 6
	}
	return out
}

// sendRDMRaw writes an ArtRdm packet carrying payload (the RDM message
// minus its start code) and returns the responding ArtRdm's RDM payload
// (everything after its 15-byte header, the same layout buildArtRdm
// writes), or ok=false on timeout.
func (c *RDMClient) sendRDMRaw(ctx context.Context, universe int, payload []byte) (raw []byte, ok bool, err error) {
	pa := NewPortAddress(universe)
	pkt := buildArtRdm(pa, payload)

	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.rdmWait = append(c.rdmWait, ch)
	c.mu.Unlock()

	if err := c.sender.SendTo(pkt, c.dest); err != nil {
		return nil, false, fmt.Errorf("artnet: send ArtRdm: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(c.timeout):
		return nil, false, nil
	case data := <-ch:
		return data[15:], true, nil
	}
}

func buildArtRdm(pa PortAddress, rdmPayload []byte) []byte {
	buf := make([]byte, 12)
	copy(buf[0:8], ArtNetID[:])
	binary.LittleEndian.PutUint16(buf[8:10], OpRdm)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf = append(buf, 0, pa.Net, pa.SubUni())
	buf = append(buf, rdmPayload...)
	return buf
}

// RDMTransaction wraps request (without its start code) in ArtRdm and
// awaits at most one decodable RDM response frame.
func (c *RDMClient) RDMTransaction(ctx context.Context, universe int, request rdm.Frame) (*rdm.Frame, error) {
	frame, err := rdm.Encode(request)
	if err != nil {
		return nil, err
	}

	raw, ok, err := c.sendRDMRaw(ctx, universe, frame[1:])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRdmTimeout
	}

	wire := append([]byte{rdmStartCode}, raw...)
	f, err := rdm.Decode(wire)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// discoveryTransport adapts an RDMClient into an rdm.Transport bound to
// a single universe, for use with rdm.DiscoverDevices.
type discoveryTransport struct {
	client   *RDMClient
	universe int
}

// NewDiscoveryTransport returns an rdm.Transport that runs RDM discovery
// over universe via c.
func NewDiscoveryTransport(c *RDMClient, universe int) rdm.Transport {
	return &discoveryTransport{client: c, universe: universe}
}

func (t *discoveryTransport) SendDiscoveryUniqueBranch(ctx context.Context, lo, hi uid.UID) ([][]byte, error) {
	req := rdm.Frame{
		Destination:  uid.UID{Manufacturer: 0xFFFF, Device: 0xFFFFFFFF},
		CommandClass: rdm.CCDiscoveryCommand,
		PID:          rdm.PIDDiscUniqueBranch,
	}
	lo6, hi6 := lo.Encode(), hi.Encode()
	req.ParameterData = append(append([]byte{}, lo6[:]...), hi6[:]...)

	frame, err := rdm.Encode(req)
	if err != nil {
		return nil, err
	}

	raw, ok, err := t.client.sendRDMRaw(ctx, t.universe, frame[1:])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	// Discovery responses use the manchester-like preamble rather than a
	// standard RDM frame; hand the raw buffer to the caller untouched.
	return [][]byte{raw}, nil
}

func (t *discoveryTransport) SendMute(ctx context.Context, u uid.UID, unmute bool) error {
	pid := uint16(rdm.PIDDiscMute)
	if unmute {
		pid = rdm.PIDDiscUnMute
	}
	_, err := t.client.RDMTransaction(ctx, t.universe, rdm.Frame{
		Destination:  u,
		CommandClass: rdm.CCDiscoveryCommand,
		PID:          pid,
	})
	if errors.Is(err, ErrRdmTimeout) {
		return nil
	}
	return err
}

func (t *discoveryTransport) SendRequest(ctx context.Context, frame rdm.Frame) error {
	_, err := t.client.RDMTransaction(ctx, t.universe, frame)
	if errors.Is(err, ErrRdmTimeout) {
		return nil
	}
	return err
}
