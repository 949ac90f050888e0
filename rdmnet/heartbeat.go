package rdmnet

import (
	"context"
	"time"
)

func (c *Client) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancelHeartbeat = cancel
	c.mu.Unlock()

	go c.heartbeatLoop(ctx)
}

func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	cancel := c.cancelHeartbeat
	c.cancelHeartbeat = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	interval := c.cfg.resolveHeartbeatInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sendHeartbeat()
		}
	}
}

func (c *Client) sendHeartbeat() {
	state := c.State()
	if state == StateConnected || state == StateBound {
		seq := c.nextSequence()
		if err := c.send(RootVectorBroker, EncodeHeartbeat(seq)); err != nil {
			c.log.Printf("[rdmnet] heartbeat send failed: %v", err)
		}
		return
	}
	if err := c.send(c.cfg.resolveHeartbeatVector(), nil); err != nil {
		c.log.Printf("[rdmnet] idle heartbeat send failed: %v", err)
	}
}
