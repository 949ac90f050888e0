package rdmnet

import (
	"context"
	"fmt"
	"time"

	"github.com/gopatchy/dmxnet/rdm"
	"github.com/gopatchy/dmxnet/uid"
)

const defaultTransactionTimeout = 2 * time.Second

// SendRdmCommand is the fire-and-forget variant of RdmTransaction,
// returning the allocated sequence without waiting for a response.
func (c *Client) SendRdmCommand(endpointID uint16, request rdm.Frame) (uint32, error) {
	seq := c.nextSequence()
	payload, err := EncodeRptRdmCommand(seq, endpointID, request)
	if err != nil {
		return 0, err
	}
	return seq, c.send(RootVectorRPT, payload)
}

// RdmTransaction sends request over RPT to endpointID and waits for
// the matching RdmResponse.
func (c *Client) RdmTransaction(ctx context.Context, endpointID uint16, request rdm.Frame, timeout time.Duration) (*RptRdmCommand, error) {
	if timeout <= 0 {
		timeout = defaultTransactionTimeout
	}

	seq := c.nextSequence()
	payload, err := EncodeRptRdmCommand(seq, endpointID, request)
	if err != nil {
		return nil, err
	}

	waiter := c.waiters.register(func(m *Message) bool {
		return m.Rpt != nil && m.Rpt.RdmResponse != nil && m.Rpt.RdmResponse.Sequence == seq
	})
	if err := c.send(RootVectorRPT, payload); err != nil {
		c.waiters.remove(waiter)
		return nil, err
	}

	msg, err := c.waiters.await(ctx, waiter, timeout)
	if err != nil {
		return nil, err
	}
	return msg.Rpt.RdmResponse, nil
}

// SendEndpointAdvertisement builds and sends an RPT
// EndpointAdvertisement, updates the local capability cache with
// provenance local_advertisement, and returns the allocated sequence.
func (c *Client) SendEndpointAdvertisement(endpointID uint16, role Role, profiles []uint16) (uint32, error) {
	seq := c.nextSequence()
	payload := EncodeRptEndpointAdvertisement(RptEndpointAdvertisement{
		Sequence:   seq,
		EndpointID: endpointID,
		Role:       role,
		Profiles:   profiles,
	})
	if err := c.send(RootVectorRPT, payload); err != nil {
		return 0, err
	}
	c.caps.Set(endpointID, role, profiles, ProvenanceLocalAdvertisement)
	return seq, nil
}

// WaitForEndpointAdvertisementAck blocks for an EndpointAdvertisementAck
// matching sequence and endpointID.
func (c *Client) WaitForEndpointAdvertisementAck(ctx context.Context, sequence uint32, endpointID uint16, timeout time.Duration) (*RptEndpointAdvertisementAck, error) {
	if timeout <= 0 {
		timeout = defaultTransactionTimeout
	}
	msg, err := c.waiters.wait(ctx, timeout, func(m *Message) bool {
		return m.Rpt != nil && m.Rpt.EndpointAdvertisementAck != nil &&
			m.Rpt.EndpointAdvertisementAck.Sequence == sequence &&
			m.Rpt.EndpointAdvertisementAck.EndpointID == endpointID
	})
	if err != nil {
		return nil, err
	}
	return msg.Rpt.EndpointAdvertisementAck, nil
}

// DiscoverLlrpTargets sends an LLRP ProbeRequest for [lowerUID, upperUID]
// and collects ProbeReply messages for timeout, returning deduplicated
// targets.
func (c *Client) DiscoverLlrpTargets(ctx context.Context, lowerUID, upperUID uid.UID, timeout time.Duration) ([]uid.UID, error) {
	seq := c.nextSequence()

	seen := make(map[uid.UID]bool)
	var results []uid.UID

	unsubscribe := c.Message.On(func(m *Message) {
		if m.Llrp == nil || m.Llrp.ProbeReply == nil || m.Llrp.ProbeReply.Sequence != seq {
			return
		}
		target := m.Llrp.ProbeReply.TargetUID
		if !seen[target] {
			seen[target] = true
			results = append(results, target)
		}
	})
	defer unsubscribe()

	payload := EncodeLlrpProbeRequest(LlrpProbeRequest{Sequence: seq, LowerUID: lowerUID, UpperUID: upperUID})
	if err := c.send(RootVectorLLRP, payload); err != nil {
		return nil, fmt.Errorf("rdmnet: discoverLlrpTargets: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return results, ctx.Err()
	}

	return results, nil
}
