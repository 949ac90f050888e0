package rdmnet

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gopatchy/dmxnet/acn"
)

const (
	// DefaultPort is the plaintext TCP default per the broker
	// well-known port.
	DefaultPort = 8888
	// DefaultTLSPort is the TLS variant's conventional default.
	DefaultTLSPort = 5569

	maxStreamBuffer = 1 << 20 // 1 MiB
)

// Config configures a Client's connection and session behavior.
type Config struct {
	Host string
	Port int // 0 -> DefaultPort, or DefaultTLSPort when TLS is set

	TLS                     bool
	TLSServerName           string // defaults to Host
	RejectUnauthorized      *bool  // nil -> RequireTLSAuthorization
	RequireTLSAuthorization *bool  // nil -> true

	// PostConnectAuth runs after the socket is ready and before the
	// client is considered connected. Returning an error fails Connect.
	PostConnectAuth func(ctx context.Context) error

	HeartbeatInterval time.Duration // default 15s
	HeartbeatVector   uint32        // default RootVectorBroker

	AutoReconnect         bool
	InitialReconnectDelay time.Duration // default 500ms
	MaxReconnectDelay     time.Duration // default 10s

	Logger *log.Logger
}

func (c *Config) resolvePort() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.TLS {
		return DefaultTLSPort
	}
	return DefaultPort
}

func (c *Config) resolveServerName() string {
	if c.TLSServerName != "" {
		return c.TLSServerName
	}
	return c.Host
}

func (c *Config) resolveRejectUnauthorized() bool {
	if c.RejectUnauthorized != nil {
		return *c.RejectUnauthorized
	}
	if c.RequireTLSAuthorization != nil {
		return *c.RequireTLSAuthorization
	}
	return true
}

func (c *Config) resolveHeartbeatInterval() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return 15 * time.Second
}

func (c *Config) resolveHeartbeatVector() uint32 {
	if c.HeartbeatVector != 0 {
		return c.HeartbeatVector
	}
	return RootVectorBroker
}

// SessionState is the broker session lifecycle state, tracked
// alongside the raw connection state.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateTCPConnected
	StateConnecting
	StateConnected
	StateBinding
	StateBound
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateTCPConnected:
		return "tcp_connected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Client is a framed RDMnet session over TCP or TLS: connection
// lifecycle, stream reassembly, decode dispatch, broker session
// negotiation, RDM transactions, endpoint advertisement, and LLRP
// discovery.
type Client struct {
	cfg Config
	cid [16]byte
	log *log.Logger

	mu          sync.Mutex
	conn        net.Conn
	connectOnce chan struct{} // non-nil while a Connect is in flight
	state       SessionState
	clientID    uint32
	seq         uint32
	reconAttempt   int
	manualClose    bool
	lastConnectErr error

	buf []byte

	waiters    *waiterTable
	caps       *CapabilityCache
	Message    eventEmitter[*Message]
	StateChange eventEmitter[SessionState]
	Reconnecting eventEmitter[ReconnectEvent]
	DecodeError eventEmitter[*RdmnetError]

	cancelHeartbeat context.CancelFunc
	cancelReconnect context.CancelFunc
}

// ReconnectEvent is emitted before each reconnect attempt.
type ReconnectEvent struct {
	Attempt int
	Delay   time.Duration
}

// NewClient builds a Client from cfg. A random CID is generated.
func NewClient(cfg Config) *Client {
	id, err := uuid.NewRandom()
	var cid [16]byte
	if err == nil {
		cid = [16]byte(id)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	c := &Client{
		cfg:     cfg,
		cid:     cid,
		log:     logger,
		state:   StateDisconnected,
		waiters: newWaiterTable(),
		caps:    newCapabilityCache(),
	}
	c.watchInboundDisconnect()
	c.watchInboundEndpointAdvertisement()
	return c
}

// watchInboundEndpointAdvertisement updates the capability cache with
// provenance remote_advertisement whenever a peer announces its own
// endpoint role/profile support over RPT.
func (c *Client) watchInboundEndpointAdvertisement() {
	c.Message.On(func(m *Message) {
		if m.Rpt == nil || m.Rpt.EndpointAdvertisement == nil {
			return
		}
		adv := m.Rpt.EndpointAdvertisement
		c.caps.Set(adv.EndpointID, adv.Role, adv.Profiles, ProvenanceRemoteAdvertisement)
	})
}

// watchInboundDisconnect returns Connected/Bound to TcpConnected
// whenever the broker sends an unsolicited Disconnect.
func (c *Client) watchInboundDisconnect() {
	c.Message.On(func(m *Message) {
		if m.Broker == nil || m.Broker.Disconnect == nil {
			return
		}
		state := c.State()
		if state == StateConnected || state == StateBound {
			c.mu.Lock()
			c.clientID = 0
			c.mu.Unlock()
			c.caps.Clear()
			c.setState(StateTCPConnected)
		}
	})
}

// Capabilities returns the client's endpoint capability cache.
func (c *Client) Capabilities() *CapabilityCache {
	return c.caps
}

// State returns the current session state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.StateChange.Emit(s)
}

// Connect opens the TCP or TLS connection, idempotent and coalescing:
// concurrent callers share the first in-flight attempt's result.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.connectOnce != nil {
		wait := c.connectOnce
		c.mu.Unlock()
		<-wait
		return c.firstConnectError()
	}
	done := make(chan struct{})
	c.connectOnce = done
	c.manualClose = false
	c.mu.Unlock()

	err := c.doConnect(ctx)

	c.mu.Lock()
	c.connectOnce = nil
	c.lastConnectErr = err
	c.mu.Unlock()
	close(done)
	return err
}

func (c *Client) firstConnectError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastConnectErr
}

func (c *Client) doConnect(ctx context.Context) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.resolvePort()))

	var conn net.Conn
	var err error
	dialer := &net.Dialer{}
	if c.cfg.TLS {
		tlsConf := &tls.Config{
			ServerName:         c.cfg.resolveServerName(),
			InsecureSkipVerify: !c.cfg.resolveRejectUnauthorized(),
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConf)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("rdmnet: connect %s: %w", addr, err)
	}

	if c.cfg.PostConnectAuth != nil {
		if err := c.cfg.PostConnectAuth(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("rdmnet: post-connect auth: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.reconAttempt = 0
	c.mu.Unlock()

	c.setState(StateTCPConnected)
	c.startHeartbeat()

	go c.readLoop(conn)

	return nil
}

func (c *Client) nextSequence() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if c.seq == 0 {
		c.seq = 1
	}
	return c.seq
}

// send frames vector/data into a root-layer packet and writes it.
func (c *Client) send(rootVector uint32, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("rdmnet: send: %w", ErrSocketClosed)
	}
	pkt := acn.Build(rootVector, data, c.cid)
	_, err := conn.Write(pkt)
	if err != nil {
		return fmt.Errorf("rdmnet: write: %w", err)
	}
	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	chunk := make([]byte, 65536)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			c.buf = append(c.buf, chunk[:n]...)
			buf := c.buf
			c.mu.Unlock()

			if len(buf) > maxStreamBuffer {
				c.log.Printf("[rdmnet] stream buffer exceeded %d bytes, tearing down", maxStreamBuffer)
				c.DecodeError.Emit(newError(DomainTransport, CodeStreamFramingError, errors.New("stream buffer exceeded cap")))
				c.teardown(false)
				return
			}

			packets, remainder := acn.ExtractPackets(buf)
			c.mu.Lock()
			c.buf = remainder
			c.mu.Unlock()

			for _, pkt := range packets {
				c.dispatchPacket(pkt)
			}
		}
		if err != nil {
			c.teardown(!c.isManualClose())
			return
		}
	}
}

func (c *Client) isManualClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manualClose
}

func (c *Client) dispatchPacket(pkt *acn.Packet) {
	msg := &Message{RootVector: pkt.Vector, CID: pkt.CID}

	switch pkt.Vector {
	case RootVectorBroker:
		bm, err := DecodeBroker(pkt.Payload)
		if err != nil {
			c.reportDecodeError(err)
			return
		}
		msg.Broker = bm
	case RootVectorRPT:
		rm, err := DecodeRpt(pkt.Payload)
		if err != nil {
			c.reportDecodeError(err)
			return
		}
		msg.Rpt = rm
	case RootVectorEPT:
		em, err := DecodeEpt(pkt.Payload)
		if err != nil {
			c.reportDecodeError(err)
			return
		}
		msg.Ept = em
	case RootVectorLLRP:
		lm, err := DecodeLlrp(pkt.Payload)
		if err != nil {
			c.reportDecodeError(err)
			return
		}
		msg.Llrp = lm
	default:
		c.reportDecodeError(newError(DomainTransport, CodeProtocolError, fmt.Errorf("unknown root vector %#x", pkt.Vector)))
		return
	}

	c.Message.Emit(msg)
	c.waiters.dispatch(msg)
}

func (c *Client) reportDecodeError(err error) {
	var re *RdmnetError
	if errors.As(err, &re) {
		c.DecodeError.Emit(re)
		return
	}
	c.DecodeError.Emit(newError(DomainTransport, CodeProtocolError, err))
}

// Disconnect closes the connection, cancels reconnect/heartbeat
// timers, and rejects every outstanding waiter.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.manualClose = true
	conn := c.conn
	c.mu.Unlock()

	if c.cancelReconnect != nil {
		c.cancelReconnect()
	}
	c.teardown(false)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) teardown(reconnect bool) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.buf = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.stopHeartbeat()
	c.caps.Clear()
	c.setState(StateDisconnected)
	c.waiters.rejectAll(ErrSocketClosed)

	if reconnect && c.cfg.AutoReconnect {
		c.scheduleReconnect()
	}
}
