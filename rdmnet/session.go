package rdmnet

import (
	"context"
	"fmt"
	"time"
)

// BrokerSessionOptions configures startBrokerSession.
type BrokerSessionOptions struct {
	Scope             string
	Role              Role
	AutoBind          bool
	EndpointID        uint16
	EndpointRole      Role
	Profiles          []uint16
	StrictNegotiation bool
	Timeout           time.Duration // default 5s
}

func (o *BrokerSessionOptions) resolveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 5 * time.Second
}

// StartBrokerSession runs the broker ConnectRequest/ConnectReply and,
// when AutoBind is set, ClientBindRequest/ClientBindReply exchange,
// driving the session state machine from TcpConnected through
// Connecting/Connected to Binding/Bound.
func (c *Client) StartBrokerSession(ctx context.Context, opts BrokerSessionOptions) error {
	timeout := opts.resolveTimeout()

	connectSeq := c.nextSequence()
	connectWaiter := c.waiters.register(func(m *Message) bool {
		return m.Broker != nil && m.Broker.ConnectReply != nil && m.Broker.ConnectReply.Sequence == connectSeq
	})
	c.setState(StateConnecting)

	payload := EncodeConnectRequest(BrokerConnectRequest{Sequence: connectSeq, Role: opts.Role, Scope: opts.Scope})
	if err := c.send(RootVectorBroker, payload); err != nil {
		c.waiters.remove(connectWaiter)
		c.setState(StateError)
		return err
	}

	msg, err := c.waiters.await(ctx, connectWaiter, timeout)
	if err != nil {
		c.setState(StateError)
		return err
	}
	reply := msg.Broker.ConnectReply
	if reply.StatusCode != BrokerStatusOk {
		c.setState(StateError)
		return mapBrokerStatus(reply.StatusCode)
	}

	c.mu.Lock()
	c.clientID = reply.ClientID
	c.mu.Unlock()
	c.setState(StateConnected)

	if !opts.AutoBind {
		return nil
	}

	bindSeq := c.nextSequence()
	bindWaiter := c.waiters.register(func(m *Message) bool {
		return m.Broker != nil && m.Broker.ClientBindReply != nil &&
			m.Broker.ClientBindReply.Sequence == bindSeq &&
			m.Broker.ClientBindReply.EndpointID == opts.EndpointID
	})
	c.setState(StateBinding)

	bindReq := BrokerClientBindRequest{
		Sequence:      bindSeq,
		EndpointID:    opts.EndpointID,
		RequestedRole: opts.EndpointRole,
		Profiles:      opts.Profiles,
	}
	if err := c.send(RootVectorBroker, EncodeClientBindRequest(bindReq)); err != nil {
		c.waiters.remove(bindWaiter)
		c.setState(StateError)
		return err
	}

	bindMsg, err := c.waiters.await(ctx, bindWaiter, timeout)
	if err != nil {
		c.setState(StateError)
		return err
	}

	bindReply := bindMsg.Broker.ClientBindReply
	if bindReply.StatusCode != BrokerStatusOk {
		c.setState(StateError)
		return mapBrokerStatus(bindReply.StatusCode)
	}

	if opts.StrictNegotiation {
		if bindReply.NegotiatedRole != opts.EndpointRole {
			c.setState(StateError)
			return newError(DomainBroker, CodeNegotiationRoleMismatch,
				fmt.Errorf("negotiated role %d != requested %d", bindReply.NegotiatedRole, opts.EndpointRole))
		}
		if len(opts.Profiles) > 0 && !containsProfile(opts.Profiles, bindReply.NegotiatedProfile) {
			c.setState(StateError)
			return newError(DomainBroker, CodeNegotiationProfileMismatch,
				fmt.Errorf("negotiated profile %d not among requested %v", bindReply.NegotiatedProfile, opts.Profiles))
		}
	}

	negotiatedProfiles := opts.Profiles
	if bindReply.NegotiatedProfile != 0 {
		negotiatedProfiles = []uint16{bindReply.NegotiatedProfile}
	}
	c.caps.Set(opts.EndpointID, bindReply.NegotiatedRole, negotiatedProfiles, ProvenanceBrokerNegotiation)

	c.setState(StateBound)
	return nil
}

func containsProfile(profiles []uint16, p uint16) bool {
	for _, v := range profiles {
		if v == p {
			return true
		}
	}
	return false
}

// QueryClientList asks the broker for the ids of every connected
// client. A non-Ok status in the reply is mapped to its broker error
// code, preserving the numeric status.
func (c *Client) QueryClientList(ctx context.Context, timeout time.Duration) ([]uint32, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	seq := c.nextSequence()
	waiter := c.waiters.register(func(m *Message) bool {
		return m.Broker != nil && m.Broker.ClientListReply != nil && m.Broker.ClientListReply.Sequence == seq
	})
	if err := c.send(RootVectorBroker, EncodeClientListRequest(seq)); err != nil {
		c.waiters.remove(waiter)
		return nil, err
	}

	msg, err := c.waiters.await(ctx, waiter, timeout)
	if err != nil {
		return nil, err
	}
	reply := msg.Broker.ClientListReply
	if reply.Status != 0 {
		return nil, mapBrokerStatus(BrokerStatusCode(reply.Status))
	}
	return reply.ClientIDs, nil
}

// QueryEndpointList asks the broker for the ids of every endpoint it
// exposes, with the same status mapping as QueryClientList.
func (c *Client) QueryEndpointList(ctx context.Context, timeout time.Duration) ([]uint16, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	seq := c.nextSequence()
	waiter := c.waiters.register(func(m *Message) bool {
		return m.Broker != nil && m.Broker.EndpointListReply != nil && m.Broker.EndpointListReply.Sequence == seq
	})
	if err := c.send(RootVectorBroker, EncodeEndpointListRequest(seq)); err != nil {
		c.waiters.remove(waiter)
		return nil, err
	}

	msg, err := c.waiters.await(ctx, waiter, timeout)
	if err != nil {
		return nil, err
	}
	reply := msg.Broker.EndpointListReply
	if reply.Status != 0 {
		return nil, mapBrokerStatus(BrokerStatusCode(reply.Status))
	}
	return reply.EndpointIDs, nil
}

// StopBrokerSession sends Disconnect and returns to TcpConnected,
// clearing the client id and capability cache.
func (c *Client) StopBrokerSession(reason uint16, text string) error {
	seq := c.nextSequence()
	err := c.send(RootVectorBroker, EncodeDisconnect(BrokerDisconnect{Sequence: seq, Reason: reason, Text: text}))

	c.mu.Lock()
	c.clientID = 0
	c.mu.Unlock()
	c.caps.Clear()
	c.setState(StateTCPConnected)

	return err
}
