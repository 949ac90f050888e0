package artnet

import (
	"fmt"
	"net"
	"sync"
)

// Sender transmits Art-Net packets over a bound UDP socket.
type Sender struct {
	conn          *net.UDPConn
	broadcastAddr *net.UDPAddr
	sequences     map[int]uint8
	seqMu         sync.Mutex
}

// NewSender creates a sender bound to bindAddr (empty for any interface)
// with broadcastAddr as the default destination for broadcast sends.
func NewSender(bindAddr, broadcastAddr string) (*Sender, error) {
	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: 0}
	if bindAddr != "" {
		ip := net.ParseIP(bindAddr)
		if ip == nil {
			return nil, fmt.Errorf("artnet: invalid bind address %q", bindAddr)
		}
		laddr.IP = ip
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}

	if err := conn.SetWriteBuffer(65536); err != nil {
		conn.Close()
		return nil, err
	}

	broadcast, err := resolveBroadcast(broadcastAddr)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Sender{
		conn:          conn,
		broadcastAddr: broadcast,
		sequences:     make(map[int]uint8),
	}, nil
}

func resolveBroadcast(addr string) (*net.UDPAddr, error) {
	if addr == "" {
		addr = "255.255.255.255"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("artnet: invalid broadcast address %q", addr)
	}
	return &net.UDPAddr{IP: ip, Port: Port}, nil
}

// nextSequence returns the next ArtDmx sequence number for universe,
// skipping zero (which means "sequencing disabled" on the wire).
func (s *Sender) nextSequence(universe int) uint8 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.sequences[universe] + 1
	if seq == 0 {
		seq = 1
	}
	s.sequences[universe] = seq
	return seq
}

// SendDMX sends ArtDmx for universe to addr, advancing the per-universe
// sequence counter.
func (s *Sender) SendDMX(addr *net.UDPAddr, universe int, data []byte) error {
	pkt := BuildArtDMX(ArtDMXOptions{
		Universe: universe,
		Sequence: s.nextSequence(universe),
		Data:     data,
	})
	_, err := s.conn.WriteToUDP(pkt, addr)
	return err
}

// SendDMXBroadcast sends ArtDmx for universe to the configured broadcast
// address.
func (s *Sender) SendDMXBroadcast(universe int, data []byte) error {
	return s.SendDMX(s.broadcastAddr, universe, data)
}

// SendPoll sends ArtPoll to addr, or to the broadcast address when addr
// is nil.
func (s *Sender) SendPoll(addr *net.UDPAddr) error {
	if addr == nil {
		addr = s.broadcastAddr
	}
	pkt := BuildArtPoll(TalkToMeOnChange, 0)
	_, err := s.conn.WriteToUDP(pkt, addr)
	return err
}

// SendPollReply sends ArtPollReply to addr.
func (s *Sender) SendPollReply(addr *net.UDPAddr, localIP [4]byte, shortName, longName string, universes []PortAddress) error {
	pkt := BuildArtPollReply(PollReplyOptions{
		IP:        localIP,
		ShortName: shortName,
		LongName:  longName,
		Universes: universes,
	})
	_, err := s.conn.WriteToUDP(pkt, addr)
	return err
}

// SendSync broadcasts ArtSync.
func (s *Sender) SendSync() error {
	_, err := s.conn.WriteToUDP(BuildArtSync(), s.broadcastAddr)
	return err
}

// SendDiagData sends ArtDiagData to addr (or broadcast if addr is nil).
func (s *Sender) SendDiagData(addr *net.UDPAddr, priority uint8, logicalPort uint8, text string) error {
	if addr == nil {
		addr = s.broadcastAddr
	}
	_, err := s.conn.WriteToUDP(BuildArtDiagData(priority, logicalPort, text), addr)
	return err
}

// SendTimeCode broadcasts ArtTimeCode.
func (s *Sender) SendTimeCode(frames, seconds, minutes, hours, typ uint8) error {
	_, err := s.conn.WriteToUDP(BuildArtTimeCode(frames, seconds, minutes, hours, typ), s.broadcastAddr)
	return err
}

// SendCommand broadcasts ArtCommand.
func (s *Sender) SendCommand(estaMan uint16, command string) error {
	_, err := s.conn.WriteToUDP(BuildArtCommand(estaMan, command), s.broadcastAddr)
	return err
}

// SendTrigger broadcasts ArtTrigger.
func (s *Sender) SendTrigger(oemCode uint16, key, subKey uint8, data []byte) error {
	_, err := s.conn.WriteToUDP(BuildArtTrigger(oemCode, key, subKey, data), s.broadcastAddr)
	return err
}

// SendTo writes a raw, already-built packet to addr.
func (s *Sender) SendTo(data []byte, addr *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(data, addr)
	return err
}

// Close closes the sender's socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// LocalAddr returns the local address the sender is bound to.
func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// BroadcastAddr returns the configured broadcast destination.
func (s *Sender) BroadcastAddr() *net.UDPAddr {
	return s.broadcastAddr
}
