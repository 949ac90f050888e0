package rdmnet

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSocketClosed is the error every outstanding waiter rejects with
// when the underlying connection goes away.
var ErrSocketClosed = errors.New("rdmnet: socket closed")

// Message is the decoded form of one inbound root-layer packet: one of
// Broker/Rpt/Ept/Llrp is set, matching RootVector.
type Message struct {
	RootVector uint32
	CID        [16]byte
	Broker     *BrokerMessage
	Rpt        *RptMessage
	Ept        *EptMessage
	Llrp       *LlrpMessage
}

type waiterEntry struct {
	matcher func(*Message) bool
	resultC chan *Message
	errC    chan error
	done    bool
}

// waiterTable holds an ordered set of predicate/deadline/resolver
// entries. dispatch resolves every matching waiter for a single
// message, in insertion order, before the caller moves on to the next
// message.
type waiterTable struct {
	mu      sync.Mutex
	entries []*waiterEntry
}

func newWaiterTable() *waiterTable {
	return &waiterTable{}
}

// register enqueues matcher immediately, so a response that races the
// caller's own send cannot slip past. The returned entry's await blocks
// for the match.
func (t *waiterTable) register(matcher func(*Message) bool) *waiterEntry {
	entry := &waiterEntry{
		matcher: matcher,
		resultC: make(chan *Message, 1),
		errC:    make(chan error, 1),
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()

	return entry
}

// await blocks until a dispatched message satisfies the entry's matcher,
// the context is cancelled, or timeout elapses.
func (t *waiterTable) await(ctx context.Context, entry *waiterEntry, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-entry.resultC:
		return msg, nil
	case err := <-entry.errC:
		return nil, err
	case <-timer.C:
		t.remove(entry)
		return nil, newError(DomainTimeout, CodeResponseTimeout, errors.New("waitForMessage: timed out"))
	case <-ctx.Done():
		t.remove(entry)
		return nil, ctx.Err()
	}
}

// wait registers matcher and blocks until a dispatched message
// satisfies it, the context is cancelled, or timeout elapses.
func (t *waiterTable) wait(ctx context.Context, timeout time.Duration, matcher func(*Message) bool) (*Message, error) {
	return t.await(ctx, t.register(matcher), timeout)
}

func (t *waiterTable) remove(entry *waiterEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e == entry {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// dispatch resolves every waiter whose matcher accepts msg, in
// insertion order, and removes them from the table.
func (t *waiterTable) dispatch(msg *Message) {
	t.mu.Lock()
	var matched []*waiterEntry
	remaining := t.entries[:0]
	for _, e := range t.entries {
		if !e.done && e.matcher(msg) {
			e.done = true
			matched = append(matched, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	t.entries = remaining
	t.mu.Unlock()

	for _, e := range matched {
		e.resultC <- msg
	}
}

// rejectAll fails every outstanding waiter, used on disconnect.
func (t *waiterTable) rejectAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = nil
	t.mu.Unlock()

	for _, e := range entries {
		e.errC <- err
	}
}
