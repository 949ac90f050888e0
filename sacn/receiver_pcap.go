package sacn

import (
	"fmt"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// PcapReceiver listens for sACN packets via packet capture, avoiding the
// need to bind and join multicast groups on the host's UDP stack.
type PcapReceiver struct {
	handle    *pcap.Handle
	universes map[uint16]bool
	handler   DMXHandler
	done      chan struct{}
}

// NewPcapReceiver opens iface and filters for sACN's UDP port, reporting
// only packets for one of universes.
func NewPcapReceiver(iface string, universes []uint16, handler DMXHandler) (*PcapReceiver, error) {
	handle, err := pcap.OpenLive(iface, 1600, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("pcap open: %w", err)
	}

	if err := handle.SetBPFFilter("udp port 5568"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("pcap filter: %w", err)
	}

	universeMap := make(map[uint16]bool, len(universes))
	for _, u := range universes {
		universeMap[u] = true
	}

	return &PcapReceiver{
		handle:    handle,
		universes: universeMap,
		handler:   handler,
		done:      make(chan struct{}),
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

	pkt, err := ParsePacket(udp.Payload)
	if err != nil {
		return
	}
	if !r.universes[pkt.Universe] {
		return
	}

	r.handler(pkt)
}

// ListInterfaces returns available network interfaces for packet
// capture.
func ListInterfaces() ([]string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, dev := range devices {
		names = append(names, dev.Name)
	}
	return names, nil
}

// DefaultInterface returns a reasonable default interface for capture.
func DefaultInterface() string {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "en0"
	}

	for _, dev := range devices {
		if len(dev.Addresses) > 0 && dev.Name != "lo0" && dev.Name != "lo" {
			log.Printf("[sacn] pcap using interface: %s", dev.Name)
			return dev.Name
		}
	}

	if len(devices) > 0 {
		return devices[0].Name
	}
	return "en0"
}
