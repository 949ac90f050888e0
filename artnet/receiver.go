package artnet

import (
	"encoding/binary"
	"log"
	"net"
)

// PacketHandler receives decoded and raw Art-Net packets.
type PacketHandler interface {
	HandleDMX(src *net.UDPAddr, pkt *DMXPacket)
	HandlePoll(src *net.UDPAddr, pkt *PollPacket)
	HandlePollReply(src *net.UDPAddr, pkt *PollReplyPacket)
	// HandleRaw is called for any recognized opcode without a typed
	// decoder here (ArtSync, ArtDiagData, ArtTimeCode, ArtCommand,
	// ArtTrigger, ArtTodRequest/Data/Control, ArtRdm), so higher-level
	// packages such as an RDM client can dispatch on opcode themselves.
	HandleRaw(src *net.UDPAddr, opcode uint16, data []byte)
}

// Receiver listens for Art-Net packets on a UDP socket.
type Receiver struct {
	conn    *net.UDPConn
	handler PacketHandler
	done    chan struct{}
}

// NewReceiver creates a receiver bound to addr.
func NewReceiver(addr *net.UDPAddr, handler PacketHandler) (*Receiver, error) {
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}

	return &Receiver{
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}, nil
}

// Start begins receiving packets in a background goroutine.
func (r *Receiver) Start() {
	go r.receiveLoop()
}

// Stop terminates the receive loop and closes the socket.
func (r *Receiver) Stop() {
	close(r.done)
	r.conn.Close()
}

func (r *Receiver) receiveLoop() {
	buf := make([]byte, 2048)

	for {
		select {
		case <-r.done:
			return
		default:
		}

		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.done:
				return
			default:
				log.Printf("[<-artnet] read error: %v", err)
				continue
			}
		}

		r.handlePacket(src, buf[:n])
	}
}

func (r *Receiver) handlePacket(src *net.UDPAddr, data []byte) {
	if len(data) < 10 {
		return
	}
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

// LocalAddr returns the local address the receiver is bound to.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// SendTo sends a raw packet through the receiver's own socket, useful
// for unicast replies that must originate from the listening port.
func (r *Receiver) SendTo(data []byte, addr *net.UDPAddr) error {
	_, err := r.conn.WriteToUDP(data, addr)
	return err
}
