package controller

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent      [][]byte
	syncCount int
	failNext  bool
}

func (f *fakeSender) SendRaw(frame []byte, useRawDmxValues bool) error {
	if f.failNext {
		f.failNext = false
		return errors.New("send failed")
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeSender) SendSync() error {
	f.syncCount++
	return nil
}

func newTestController(t *testing.T, artSync bool) (*Controller, map[int]*fakeSender) {
	t.Helper()
	senders := map[int]*fakeSender{}
	c, err := New(Config{
		ArtSync: artSync,
		Factory: func(id int) (Sender, error) {
			s := &fakeSender{}
			senders[id] = s
			return s, nil
		},
	})
	require.NoError(t, err)
	return c, senders
}

func TestAddUniverseIdempotent(t *testing.T) {
	c, senders := newTestController(t, false)

	u1, err := c.AddUniverse(1)
	require.NoError(t, err)
	u2, err := c.AddUniverse(1)
	require.NoError(t, err)
	require.Same(t, u1, u2)
	require.Len(t, senders, 1)
}

func TestFlushOnlyDirty(t *testing.T) {
	c, senders := newTestController(t, false)
	_, err := c.AddUniverse(1)
	require.NoError(t, err)
	_, err = c.AddUniverse(2)
	require.NoError(t, err)

	require.NoError(t, c.SetChannel(1, 1, 255))
	require.NoError(t, c.FlushAll(false))

	require.Len(t, senders[1].sent, 1)
	require.Len(t, senders[2].sent, 0)
}

func TestFlushForceSendsClean(t *testing.T) {
	c, senders := newTestController(t, false)
	_, err := c.AddUniverse(1)
	require.NoError(t, err)
	require.NoError(t, c.FlushAll(true))
	require.Len(t, senders[1].sent, 1)
}

func TestArtSyncFiresOnceAfterAnySend(t *testing.T) {
	c, senders := newTestController(t, true)
	_, err := c.AddUniverse(1)
	require.NoError(t, err)
	_, err = c.AddUniverse(2)
	require.NoError(t, err)
	require.NoError(t, c.SetChannel(2, 5, 10))

	require.NoError(t, c.FlushAll(false))

	require.Equal(t, 1, senders[1].syncCount)
	require.Equal(t, 0, senders[2].syncCount)
}

func TestArtSyncSkippedWhenNothingSent(t *testing.T) {
	c, senders := newTestController(t, true)
	_, err := c.AddUniverse(1)
	require.NoError(t, err)
	require.NoError(t, c.FlushAll(false))
	require.Equal(t, 0, senders[1].syncCount)
}

func TestFlushUnknownUniverse(t *testing.T) {
	c, _ := newTestController(t, false)
	require.Error(t, c.Flush(99, false))
}

func TestFlushPropagatesSenderError(t *testing.T) {
	c, senders := newTestController(t, false)
	_, err := c.AddUniverse(1)
	require.NoError(t, err)
	senders[1].failNext = true
	require.NoError(t, c.SetChannel(1, 1, 1))
	require.Error(t, c.Flush(1, false))
}

func TestFlushAllOrderIsInsertionOrder(t *testing.T) {
	c, senders := newTestController(t, true)
	_, err := c.AddUniverse(5)
	require.NoError(t, err)
	_, err = c.AddUniverse(1)
	require.NoError(t, err)
	require.NoError(t, c.FlushAll(true))

	// ArtSync always targets the first-added sender (universe 5), not
	// the numerically lowest universe id.
	require.Equal(t, 1, senders[5].syncCount)
	require.Equal(t, 0, senders[1].syncCount)
}
