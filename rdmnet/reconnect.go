package rdmnet

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func (c *Config) resolveInitialReconnectDelay() time.Duration {
	if c.InitialReconnectDelay > 0 {
		return c.InitialReconnectDelay
	}
	return 500 * time.Millisecond
}

func (c *Config) resolveMaxReconnectDelay() time.Duration {
	if c.MaxReconnectDelay > 0 {
		return c.MaxReconnectDelay
	}
	return 10 * time.Second
}

func (c *Client) scheduleReconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancelReconnect = cancel
	c.mu.Unlock()

	go c.reconnectLoop(ctx)
}

func (c *Client) reconnectLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.resolveInitialReconnectDelay()
	bo.MaxInterval = c.cfg.resolveMaxReconnectDelay()
	bo.MaxElapsedTime = 0
	// Deterministic doubling, matching min(initial*2^(attempt-1), max)
	// with no random jitter.
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	// NewExponentialBackOff already reset the current interval to its own
	// default; reset again so the first delay is InitialInterval.
	bo.Reset()

	for {
		c.mu.Lock()
		c.reconAttempt++
		attempt := c.reconAttempt
		c.mu.Unlock()

		delay := bo.NextBackOff()
		c.Reconnecting.Emit(ReconnectEvent{Attempt: attempt, Delay: delay})

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if c.isManualClose() {
			return
		}

		if err := c.Connect(ctx); err != nil {
			c.log.Printf("[rdmnet] reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		return
	}
}
