package artnet

import (
	"log"
	"net"
	"sync"
	"time"
)

// Node is a discovered Art-Net node.
type Node struct {
	IP          net.IP
	Port        uint16
	ShortName   string
	LongName    string
	Universes   []PortAddress
	LastSeen    time.Time
	CanTransmit bool
}

// Discovery tracks Art-Net nodes seen via ArtPoll/ArtPollReply.
type Discovery struct {
	sender      *Sender
	nodes       map[string]*Node // keyed by IP string
	nodesMu     sync.RWMutex
	localIP     [4]byte
	shortName   string
	longName    string
	universes   []PortAddress
	pollTargets []*net.UDPAddr
	done        chan struct{}
}

// NewDiscovery creates a discovery handler that advertises shortName,
// longName, and universes in its own ArtPollReply, and polls
// pollTargets periodically.
func NewDiscovery(sender *Sender, shortName, longName string, universes []PortAddress, pollTargets []*net.UDPAddr) *Discovery {
	return &Discovery{
		sender:      sender,
		nodes:       make(map[string]*Node),
		shortName:   shortName,
		longName:    longName,
		universes:   universes,
		pollTargets: pollTargets,
		done:        make(chan struct{}),
	}
}

// Start begins periodic polling and stale-node cleanup.
func (d *Discovery) Start() {
	d.localIP = d.getLocalIP()
	go d.pollLoop()
}

// Stop halts discovery.
func (d *Discovery) Stop() {
	close(d.done)
}

func (d *Discovery) pollLoop() {
	d.sendPolls()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.sendPolls()
		case <-cleanupTicker.C:
			d.cleanup()
		}
	}
}

func (d *Discovery) sendPolls() {
	for _, target := range d.pollTargets {
		if err := d.sender.SendPoll(target); err != nil {
			log.Printf("[->artnet] poll error: dst=%s err=%v", target.IP, err)
		}
	}
}

func (d *Discovery) cleanup() {
	d.nodesMu.Lock()
	defer d.nodesMu.Unlock()

	cutoff := time.Now().Add(-60 * time.Second)
	for ip, node := range d.nodes {
		if node.LastSeen.Before(cutoff) {
			log.Printf("[artnet] node timeout ip=%s name=%s", ip, node.ShortName)
			delete(d.nodes, ip)
		}
	}
}

// HandlePollReply updates node state from an incoming ArtPollReply.
func (d *Discovery) HandlePollReply(src *net.UDPAddr, pkt *PollReplyPacket) {
	d.nodesMu.Lock()
	defer d.nodesMu.Unlock()

	ip := src.IP.String()

	localIP := net.IP(d.localIP[:])
	if src.IP.Equal(localIP) {
		return
	}

	var universes []PortAddress
	numPorts := pkt.NumPorts
	if numPorts > 4 {
		numPorts = 4
	}
	for i := 0; i < numPorts; i++ {
		if pkt.PortTypes[i]&0x80 != 0 {
			universes = append(universes, subUniToPortAddress(pkt.NetSwitch, (pkt.SubSwitch&0x0F)<<4|(pkt.SwOut[i]&0x0F)))
		}
	}

	node, exists := d.nodes[ip]
	if !exists {
		node = &Node{IP: src.IP, Port: pkt.Port}
		d.nodes[ip] = node
	}

	node.ShortName = pkt.ShortName
	node.LongName = pkt.LongName
	node.LastSeen = time.Now()
	node.CanTransmit = true

	prevLen := len(node.Universes)
	for _, u := range universes {
		found := false
		for _, existing := range node.Universes {
			if existing == u {
				found = true
				break
			}
		}
		if !found {
			node.Universes = append(node.Universes, u)
		}
	}

	if !exists {
		log.Printf("[artnet] discovered ip=%s name=%s universes=%v", ip, node.ShortName, node.Universes)
	} else if len(node.Universes) != prevLen {
		log.Printf("[artnet] updated ip=%s name=%s universes=%v", ip, node.ShortName, node.Universes)
	}
}

// HandlePoll replies to an incoming ArtPoll with our own ArtPollReply.
func (d *Discovery) HandlePoll(src *net.UDPAddr) {
	if err := d.sender.SendPollReply(src, d.localIP, d.shortName, d.longName, d.universes); err != nil {
		log.Printf("[->artnet] pollreply error: dst=%s err=%v", src.IP, err)
	}
}

// NodesForUniverse returns nodes that advertised pa as an output port.
func (d *Discovery) NodesForUniverse(pa PortAddress) []*Node {
	d.nodesMu.RLock()
	defer d.nodesMu.RUnlock()

	var result []*Node
	for _, node := range d.nodes {
		for _, u := range node.Universes {
			if u == pa {
				result = append(result, node)
				break
			}
		}
	}
	return result
}

// AllNodes returns every currently tracked node.
func (d *Discovery) AllNodes() []*Node {
	d.nodesMu.RLock()
	defer d.nodesMu.RUnlock()

	result := make([]*Node, 0, len(d.nodes))
	for _, node := range d.nodes {
		result = append(result, node)
	}
	return result
}

func (d *Discovery) getLocalIP() [4]byte {
	var result [4]byte

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return result
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				copy(result[:], ip4)
				return result
			}
		}
	}

	return result
}

// SetLocalIP overrides the local IP advertised in ArtPollReply.
func (d *Discovery) SetLocalIP(ip net.IP) {
	if ip4 := ip.To4(); ip4 != nil {
		copy(d.localIP[:], ip4)
	}
}
