package artnet

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// PcapReceiver listens for Art-Net packets via packet capture instead of
// a bound UDP socket, avoiding port conflicts with other listeners on
// the same host.
type PcapReceiver struct {
	handle  *pcap.Handle
	handler PacketHandler
	done    chan struct{}
}

// NewPcapReceiver opens iface in promiscuous mode and filters for
// Art-Net's UDP port.
func NewPcapReceiver(iface string, handler PacketHandler) (*PcapReceiver, error) {
	handle, err := pcap.OpenLive(iface, 1600, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}

	if err := handle.SetBPFFilter("udp port 6454"); err != nil {
		handle.Close()
		return nil, err
	}

	return &PcapReceiver{
		handle:  handle,
		handler: handler,
		done:    make(chan struct{}),
	}, nil
}

// Start begins receiving packets in a background goroutine.
func (r *PcapReceiver) Start() {
	go r.receiveLoop()
}

// Stop terminates the receive loop and closes the capture handle.
func (r *PcapReceiver) Stop() {
	close(r.done)
	r.handle.Close()
}

func (r *PcapReceiver) receiveLoop() {
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	for {
		select {
		case <-r.done:
			return
		case packet, ok := <-packetSource.Packets():
			if !ok {
				return
			}
			r.handlePacket(packet)
		}
	}
}

func (r *PcapReceiver) handlePacket(packet gopacket.Packet) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return
	}

	var srcIP [4]byte
	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		if ip, ok := ipLayer.(*layers.IPv4); ok {
			copy(srcIP[:], ip.SrcIP.To4())
		}
	}

	data := udp.Payload
	if len(data) < 10 {
		return
	}

	src := &net.UDPAddr{IP: net.IP(srcIP[:]), Port: int(udp.SrcPort)}
	opcode := binary.LittleEndian.Uint16(data[8:10])

	switch opcode {
	case OpDmx:
		pkt, err := ParseArtDMX(data)
		if err != nil || pkt == nil {
			return
		}
		r.handler.HandleDMX(src, pkt)
	case OpPoll:
		pkt, err := ParseArtPoll(data)
		if err != nil || pkt == nil {
			return
		}
		r.handler.HandlePoll(src, pkt)
	case OpPollReply:
		pkt, err := ParseArtPollReply(data)
		if err != nil || pkt == nil {
			return
		}
		r.handler.HandlePollReply(src, pkt)
	default:
		r.handler.HandleRaw(src, opcode, data)
	}
}
