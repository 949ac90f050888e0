package sacn

import (
	"log"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

// DMXHandler is called for every accepted sACN data packet.
type DMXHandler func(pkt *Packet)

// Receiver listens for sACN packets on the universes it has joined.
type Receiver struct {
	conn      *ipv4.PacketConn
	universes []uint16
	handler   DMXHandler
	done      chan struct{}

	seqMu  sync.Mutex
	lastSeq map[uint16]uint8
}

// NewReceiver creates a receiver joined to the multicast groups for
// universes.
func NewReceiver(universes []uint16, ifaceName string, handler DMXHandler) (*Receiver, error) {
	c, err := net.ListenPacket("udp4", ":5568")
	if err != nil {
		return nil, err
	}

	var iface *net.Interface
	if ifaceName != "" {
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			c.Close()
			return nil, err
		}
	}

	p := ipv4.NewPacketConn(c)

	for _, u := range universes {
		addr, err := MulticastAddr(u)
		if err != nil {
			c.Close()
			return nil, err
		}
		if err := p.JoinGroup(iface, addr); err != nil {
			c.Close()
			return nil, err
		}
	}

	return &Receiver{
		conn:      p,
		universes: universes,
		handler:   handler,
		done:      make(chan struct{}),
		lastSeq:   make(map[uint16]uint8),
	}, nil
}

// Start begins receiving packets in a background goroutine.
func (r *Receiver) Start() {
	go r.receiveLoop()
}

// Stop terminates the receive loop and leaves the multicast groups.
func (r *Receiver) Stop() {
	close(r.done)
	r.conn.Close()
}

func (r *Receiver) receiveLoop() {
	buf := make([]byte, PacketLen)

	for {
		select {
		case <-r.done:
			return
		default:
		}

		n, _, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.done:
				return
			default:
				log.Printf("[<-sacn] read error: %v", err)
				continue
			}
		}

		r.handlePacket(buf[:n])
	}
}

func (r *Receiver) handlePacket(data []byte) {
	pkt, err := ParsePacket(data)
	if err != nil {
		return
	}

	if r.sequenceOutOfOrder(pkt.Universe, pkt.Sequence) {
		log.Printf("[sacn] universe %d: sequence significantly out of order (got %d)", pkt.Universe, pkt.Sequence)
	}

	r.handler(pkt)
}

// sequenceOutOfOrder implements the documented (non-normative) E1.31
// out-of-order heuristic: a sequence delta greater than 20 that is not
// exactly 1 is reported, but the packet is still delivered and the
// last-seen sequence is always updated.
func (r *Receiver) sequenceOutOfOrder(universe uint16, seq uint8) bool {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()

	last, ok := r.lastSeq[universe]
	r.lastSeq[universe] = seq
	if !ok {
		return false
	}

	delta := int(seq) - int(last)
	if delta < 0 {
		delta += 256
	}
	return delta > 20 && delta != 1
}
