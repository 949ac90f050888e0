package sacn

import (
	"crypto/rand"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// Sender is a stateful sACN source: it tracks a per-universe sequence
// counter, can run a refresh-rate loop that repeats the last packet it
// sent, and announces the universes it owns via periodic discovery
// packets.
type Sender struct {
	conn       *net.UDPConn
	sourceName string
	cid        [16]byte
	sequences  map[uint16]uint8
	seqMu      sync.Mutex
	universes  map[uint16]bool

	refreshRate   float64
	lastPacket    map[uint16][]byte
	lastAddr      map[uint16]*net.UDPAddr
	lastOK        map[uint16]bool
	onResendState func(universe uint16, ok bool)

	done chan struct{}
}

// NewSender creates a sender bound to ifaceName's multicast interface
// (or the default interface when empty).
func NewSender(sourceName string, ifaceName string) (*Sender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}

	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			conn.Close()
			return nil, err
		}
		p := ipv4.NewPacketConn(conn)
		if err := p.SetMulticastInterface(iface); err != nil {
			conn.Close()
			return nil, err
		}
	}

	var cid [16]byte
	rand.Read(cid[:])

	return &Sender{
		conn:       conn,
		sourceName: sourceName,
		cid:        cid,
		sequences:  make(map[uint16]uint8),
		universes:  make(map[uint16]bool),
		lastPacket: make(map[uint16][]byte),
		lastAddr:   make(map[uint16]*net.UDPAddr),
		lastOK:     make(map[uint16]bool),
		done:       make(chan struct{}),
	}, nil
}

// SetRefreshRate configures the keepalive loop: every 1000/rate ms the
// sender repeats the last packet sent per universe. A rate of 0
// disables the loop.
func (s *Sender) SetRefreshRate(rate float64, onResendState func(universe uint16, ok bool)) {
	s.refreshRate = rate
	s.onResendState = onResendState
}

// StartRefreshLoop begins the refresh-rate loop if configured.
func (s *Sender) StartRefreshLoop() {
	if s.refreshRate <= 0 {
		return
	}
	go s.refreshLoop()
}

func (s *Sender) refreshLoop() {
	interval := time.Duration(1000/s.refreshRate) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.resendAll()
		}
	}
}

func (s *Sender) resendAll() {
	s.seqMu.Lock()
	type resend struct {
		universe uint16
		pkt      []byte
		addr     *net.UDPAddr
	}
	var pending []resend
	for u, pkt := range s.lastPacket {
		pending = append(pending, resend{universe: u, pkt: pkt, addr: s.lastAddr[u]})
	}
	s.seqMu.Unlock()

	for _, r := range pending {
		_, err := s.conn.WriteToUDP(r.pkt, r.addr)
		ok := err == nil

		s.seqMu.Lock()
		changed := s.lastOK[r.universe] != ok
		s.lastOK[r.universe] = ok
		s.seqMu.Unlock()

		if changed && s.onResendState != nil {
			s.onResendState(r.universe, ok)
		}
	}
}

func (s *Sender) nextSequence(universe uint16) uint8 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.sequences[universe]
	s.sequences[universe] = seq + 1
	return seq
}

// Send builds a packet from opts (stamping the next sequence number)
// and transmits it to the universe's multicast group, remembering it
// for the refresh loop. An out-of-range universe fails before anything
// is sent.
func (s *Sender) Send(opts PacketOptions) error {
	addr, err := MulticastAddr(opts.Universe)
	if err != nil {
		return err
	}
	return s.sendTo(addr, opts)
}

// SendUnicast builds a packet from opts and transmits it to addr.
func (s *Sender) SendUnicast(addr *net.UDPAddr, opts PacketOptions) error {
	return s.sendTo(addr, opts)
}

func (s *Sender) sendTo(addr *net.UDPAddr, opts PacketOptions) error {
	if err := ValidateUniverse(opts.Universe); err != nil {
		return err
	}
	opts.Sequence = s.nextSequence(opts.Universe)
	if opts.SourceName == "" {
		opts.SourceName = s.sourceName
	}
	if opts.CID == ([16]byte{}) {
		opts.CID = s.cid
	}
	pkt := BuildDataPacket(opts)

	s.seqMu.Lock()
	s.lastPacket[opts.Universe] = pkt
	s.lastAddr[opts.Universe] = addr
	s.universes[opts.Universe] = true
	s.seqMu.Unlock()

	_, err := s.conn.WriteToUDP(pkt, addr)
	return err
}

// Close stops the refresh loop and closes the socket.
func (s *Sender) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.conn.Close()
}

// RegisterUniverse marks universe as owned by this sender for discovery
// announcements even before the first send.
func (s *Sender) RegisterUniverse(universe uint16) {
	s.seqMu.Lock()
	s.universes[universe] = true
	s.seqMu.Unlock()
}

// StartDiscovery begins periodic universe-discovery announcements.
func (s *Sender) StartDiscovery() {
	go s.discoveryLoop()
}

func (s *Sender) discoveryLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	s.sendDiscovery()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sendDiscovery()
		}
	}
}

func (s *Sender) sendDiscovery() {
	s.seqMu.Lock()
	universes := make([]uint16, 0, len(s.universes))
	for u := range s.universes {
		universes = append(universes, u)
	}
	s.seqMu.Unlock()

	if len(universes) == 0 {
		return
	}

	sort.Slice(universes, func(i, j int) bool { return universes[i] < universes[j] })

	const maxPerPage = 512
	totalPages := (len(universes) + maxPerPage - 1) / maxPerPage

	for page := 0; page < totalPages; page++ {
		start := page * maxPerPage
		end := start + maxPerPage
		if end > len(universes) {
			end = len(universes)
		}
		pkt := BuildDiscoveryPacket(s.sourceName, s.cid, uint8(page), uint8(totalPages-1), universes[start:end])
		s.conn.WriteToUDP(pkt, DiscoveryAddr)
	}
}
