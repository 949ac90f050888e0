package rdmnet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopatchy/dmxnet/acn"
	"github.com/gopatchy/dmxnet/rdm"
	"github.com/gopatchy/dmxnet/uid"
)

// newPipedClient builds a Client wired to one end of an in-memory
// net.Pipe, with the read loop already running, so tests can drive the
// broker session/transaction machinery without a real socket.
func newPipedClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	clientSide, brokerSide := net.Pipe()

	c := NewClient(Config{Host: "test"})
	c.mu.Lock()
	c.conn = clientSide
	c.mu.Unlock()
	c.setState(StateTCPConnected)
	go c.readLoop(clientSide)

	t.Cleanup(func() {
		_ = c.Disconnect()
	})

	return c, brokerSide
}

// readBrokerPacket reads exactly one root-layer packet off conn.
func readBrokerPacket(t *testing.T, conn net.Conn) *acn.Packet {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	var acc []byte
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		acc = append(acc, buf[:n]...)
		packets, remainder := acn.ExtractPackets(acc)
		if len(packets) > 0 {
			acc = remainder
			return packets[0]
		}
	}
}

func TestStartBrokerSessionHappyPath(t *testing.T) {
	c, broker := newPipedClient(t)
	defer broker.Close()

	go func() {
		connReq := readBrokerPacket(t, broker)
		reqMsg, err := DecodeBroker(connReq.Payload)
		require.NoError(t, err)
		require.NotNil(t, reqMsg.ConnectRequest)
		assert.Equal(t, "default", reqMsg.ConnectRequest.Scope)

		reply := EncodeConnectReply(BrokerConnectReply{
			Sequence:   reqMsg.ConnectRequest.Sequence,
			StatusCode: BrokerStatusOk,
			ClientID:   99,
		})
		_, err = broker.Write(acn.Build(RootVectorBroker, reply, [16]byte{}))
		require.NoError(t, err)

		bindReq := readBrokerPacket(t, broker)
		bindMsg, err := DecodeBroker(bindReq.Payload)
		require.NoError(t, err)
		require.NotNil(t, bindMsg.ClientBindRequest)
		assert.Equal(t, uint16(1), bindMsg.ClientBindRequest.EndpointID)

		bindReply := EncodeClientBindReply(BrokerClientBindReply{
			Sequence:          bindMsg.ClientBindRequest.Sequence,
			StatusCode:        BrokerStatusOk,
			EndpointID:        1,
			NegotiatedRole:    RoleController,
			NegotiatedProfile: 0x0100,
		})
		_, err = broker.Write(acn.Build(RootVectorBroker, bindReply, [16]byte{}))
		require.NoError(t, err)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.StartBrokerSession(ctx, BrokerSessionOptions{
		Scope:        "default",
		Role:         RoleController,
		AutoBind:     true,
		EndpointID:   1,
		EndpointRole: RoleController,
	})
	require.NoError(t, err)

	assert.Equal(t, StateBound, c.State())
	c.mu.Lock()
	clientID := c.clientID
	c.mu.Unlock()
	assert.Equal(t, uint32(99), clientID)

	capEntry, ok := c.Capabilities().Get(1)
	require.True(t, ok)
	assert.Equal(t, RoleController, capEntry.Role)
	assert.Equal(t, []uint16{0x0100}, capEntry.Profiles)
	assert.Equal(t, ProvenanceBrokerNegotiation, capEntry.Provenance)
}

func TestStartBrokerSessionRejectionMapping(t *testing.T) {
	c, broker := newPipedClient(t)
	defer broker.Close()

	go func() {
		connReq := readBrokerPacket(t, broker)
		reqMsg, err := DecodeBroker(connReq.Payload)
		require.NoError(t, err)

		reply := EncodeConnectReply(BrokerConnectReply{
			Sequence:   reqMsg.ConnectRequest.Sequence,
			StatusCode: BrokerStatusInvalidScope,
		})
		_, err = broker.Write(acn.Build(RootVectorBroker, reply, [16]byte{}))
		require.NoError(t, err)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.StartBrokerSession(ctx, BrokerSessionOptions{Scope: "default", Role: RoleController})
	require.Error(t, err)

	var rerr *RdmnetError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, DomainBroker, rerr.Domain)
	assert.Equal(t, CodeBrokerInvalidScope, rerr.Code)
	assert.Equal(t, 2, rerr.StatusCode)
	assert.Equal(t, StateError, c.State())
}

func TestRdmTransactionRoundTrip(t *testing.T) {
	c, broker := newPipedClient(t)
	defer broker.Close()

	req := rdm.Frame{
		Destination:  uid.New(0x1234, 1),
		Source:       uid.New(0x1234, 2),
		CommandClass: rdm.CCGetCommand,
		PID:          0x0060,
	}

	go func() {
		cmdPkt := readBrokerPacket(t, broker)
		cmdMsg, err := DecodeRpt(cmdPkt.Payload)
		require.NoError(t, err)
		require.NotNil(t, cmdMsg.RdmCommand)

		resp := rdm.Frame{
			Destination:   cmdMsg.RdmCommand.Rdm.Source,
			Source:        cmdMsg.RdmCommand.Rdm.Destination,
			CommandClass:  rdm.CCGetCommandResponse,
			PID:           0x0060,
			ParameterData: []byte{1, 2, 3, 4},
		}
		payload, err := EncodeRptRdmResponse(cmdMsg.RdmCommand.Sequence, cmdMsg.RdmCommand.EndpointID, resp)
		require.NoError(t, err)
		_, err = broker.Write(acn.Build(RootVectorRPT, payload, [16]byte{}))
		require.NoError(t, err)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.RdmTransaction(ctx, 1, req, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0060), resp.Rdm.PID)
	assert.Equal(t, []byte{1, 2, 3, 4}, resp.Rdm.ParameterData)
}

func TestInboundEndpointAdvertisementUpdatesCapabilityWithRemoteProvenance(t *testing.T) {
	c, broker := newPipedClient(t)
	defer broker.Close()

	var updated Capability
	unsubscribe := c.Capabilities().Updated.On(func(capEntry Capability) {
		updated = capEntry
	})
	defer unsubscribe()

	payload := EncodeRptEndpointAdvertisement(RptEndpointAdvertisement{
		Sequence:   1,
		EndpointID: 3,
		Role:       RoleDevice,
		Profiles:   []uint16{0x0200, 0x0100, 0x0100},
	})
	_, err := broker.Write(acn.Build(RootVectorRPT, payload, [16]byte{}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		capEntry, ok := c.Capabilities().Get(3)
		return ok && capEntry.Provenance == ProvenanceRemoteAdvertisement
	}, 2*time.Second, 10*time.Millisecond)

	capEntry, ok := c.Capabilities().Get(3)
	require.True(t, ok)
	assert.Equal(t, RoleDevice, capEntry.Role)
	assert.Equal(t, []uint16{0x0100, 0x0200}, capEntry.Profiles)
	assert.Equal(t, ProvenanceRemoteAdvertisement, updated.Provenance)
}

func TestQueryClientListStatusMapping(t *testing.T) {
	c, broker := newPipedClient(t)
	defer broker.Close()

	go func() {
		reqPkt := readBrokerPacket(t, broker)
		reqMsg, err := DecodeBroker(reqPkt.Payload)
		require.NoError(t, err)
		require.NotNil(t, reqMsg.ClientListRequest)

		reply := EncodeClientListReply(BrokerClientListReply{
			Sequence: reqMsg.ClientListRequest.Sequence,
			Status:   uint16(BrokerStatusUnauthorized),
		})
		_, err = broker.Write(acn.Build(RootVectorBroker, reply, [16]byte{}))
		require.NoError(t, err)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.QueryClientList(ctx, time.Second)
	require.Error(t, err)

	var rerr *RdmnetError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeBrokerUnauthorized, rerr.Code)
	assert.Equal(t, int(BrokerStatusUnauthorized), rerr.StatusCode)
}

func TestQueryEndpointListHappyPath(t *testing.T) {
	c, broker := newPipedClient(t)
	defer broker.Close()

	go func() {
		reqPkt := readBrokerPacket(t, broker)
		reqMsg, err := DecodeBroker(reqPkt.Payload)
		require.NoError(t, err)
		require.NotNil(t, reqMsg.EndpointListRequest)

		reply := EncodeEndpointListReply(BrokerEndpointListReply{
			Sequence:    reqMsg.EndpointListRequest.Sequence,
			EndpointIDs: []uint16{1, 7},
		})
		_, err = broker.Write(acn.Build(RootVectorBroker, reply, [16]byte{}))
		require.NoError(t, err)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ids, err := c.QueryEndpointList(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 7}, ids)
}

func TestInboundDisconnectReturnsToTCPConnected(t *testing.T) {
	c, broker := newPipedClient(t)
	defer broker.Close()

	c.setState(StateBound)
	c.mu.Lock()
	c.clientID = 42
	c.mu.Unlock()
	c.Capabilities().Set(1, RoleController, []uint16{0x0100}, ProvenanceBrokerNegotiation)

	payload := EncodeDisconnect(BrokerDisconnect{Sequence: 1, Reason: 0})
	_, err := broker.Write(acn.Build(RootVectorBroker, payload, [16]byte{}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.State() == StateTCPConnected
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := c.Capabilities().Get(1)
	assert.False(t, ok)
}
