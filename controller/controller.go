// Package controller implements the DMX controller core (spec §4.8): it
// owns per-universe frame buffers, creates one sender per universe, and
// performs dirty-only flushes with an optional post-flush Art-Net sync
// pulse.
package controller

import (
	"fmt"
	"sync"

	"github.com/gopatchy/dmxnet/artnet"
	"github.com/gopatchy/dmxnet/dmx"
	"github.com/gopatchy/dmxnet/sacn"
)

// Sender is the minimal interface the controller needs from a
// protocol-specific sender. Both artnet.Sender and sacn.Sender are
// adapted to this interface below.
type Sender interface {
	SendRaw(frame []byte, useRawDmxValues bool) error
}

// Syncer is implemented by senders that support a post-flush sync pulse
// (only Art-Net's ArtSync has one; sACN has no equivalent).
type Syncer interface {
	SendSync() error
}

// SenderFactory builds the Sender for a newly added universe. Controller
// calls this at most once per universe id.
type SenderFactory func(universeID int) (Sender, error)

// Config selects how universes acquire their sender. A custom Factory
// takes precedence; otherwise Protocol ("artnet" or "sacn") selects a
// built-in sender sharing the given ArtnetSender/SacnSender connection.
// The built-in path applies no per-universe options; a Factory can.
type Config struct {
	Factory      SenderFactory
	Protocol     string
	ArtnetSender *artnet.Sender
	SacnSender   *sacn.Sender
	// ArtSync enables a single post-flush ArtSync pulse, sent to the
	// first added sender that implements Syncer, whenever at least one
	// universe was actually sent during a flush.
	ArtSync bool
}

type entry struct {
	universe *dmx.Universe
	sender   Sender
}

// Controller owns a set of universes and their senders and coordinates
// dirty-tracked flushes across them.
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	factory   SenderFactory
	order     []int // insertion order, for deterministic ArtSync sender selection
	universes map[int]*entry
}

// New creates a Controller. cfg.Factory, if set, is used for every
// universe; otherwise cfg.Protocol selects a built-in adapter.
func New(cfg Config) (*Controller, error) {
	factory := cfg.Factory
	if factory == nil {
		switch cfg.Protocol {
		case "artnet":
			if cfg.ArtnetSender == nil {
				return nil, fmt.Errorf("controller: protocol artnet requires ArtnetSender")
			}
			s := cfg.ArtnetSender
			factory = func(universeID int) (Sender, error) {
				return &artnetSender{sender: s, universe: universeID}, nil
			}
		case "sacn":
			if cfg.SacnSender == nil {
				return nil, fmt.Errorf("controller: protocol sacn requires SacnSender")
			}
			s := cfg.SacnSender
			factory = func(universeID int) (Sender, error) {
				if universeID < 0 || universeID > 0xFFFF {
					return nil, fmt.Errorf("controller: universe %d out of range for sacn", universeID)
				}
				return &sacnSender{sender: s, universe: uint16(universeID)}, nil
			}
		default:
			return nil, fmt.Errorf("controller: no Factory and unknown Protocol %q", cfg.Protocol)
		}
	}

	return &Controller{
		cfg:       cfg,
		factory:   factory,
		universes: make(map[int]*entry),
	}, nil
}

// AddUniverse creates the universe and its sender on first reference.
// It is idempotent: a second call with the same id is a no-op and
// returns the existing universe.
func (c *Controller) AddUniverse(id int) (*dmx.Universe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.universes[id]; ok {
		return e.universe, nil
	}

	u, err := dmx.New(id)
	if err != nil {
		return nil, err
	}
	sender, err := c.factory(id)
	if err != nil {
		return nil, err
	}
	c.universes[id] = &entry{universe: u, sender: sender}
	c.order = append(c.order, id)
	return u, nil
}

func (c *Controller) get(id int) (*entry, error) {
	e, ok := c.universes[id]
	if !ok {
		return nil, fmt.Errorf("controller: universe %d not added", id)
	}
	return e, nil
}

// SetChannel delegates to the named universe's SetChannel.
func (c *Controller) SetChannel(id, channel int, value float64) error {
	c.mu.Lock()
	e, err := c.get(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return e.universe.SetChannel(channel, value)
}

// SetFrame delegates to the named universe's SetFrame.
func (c *Controller) SetFrame(id int, data []byte) error {
	c.mu.Lock()
	e, err := c.get(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	e.universe.SetFrame(data)
	return nil
}

// Flush sends the named universe's frame if it is dirty (or
// unconditionally when force is true), consuming the dirty flag on
// success. If cfg.ArtSync is enabled and the universe was actually
// sent, a single sync pulse follows via the first Syncer-capable
// sender known to the controller.
func (c *Controller) Flush(id int, force bool) error {
	c.mu.Lock()
	e, err := c.get(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	sent, err := c.flushEntry(e, force)
	if err != nil {
		return err
	}
	if sent && c.cfg.ArtSync {
		return c.sendSync()
	}
	return nil
}

// FlushAll scans every universe, sending each that is dirty (or every
// universe when force is true). If cfg.ArtSync is enabled and at
// least one universe was sent, exactly one sync pulse follows.
func (c *Controller) FlushAll(force bool) error {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.order))
	for _, id := range c.order {
		entries = append(entries, c.universes[id])
	}
	c.mu.Unlock()

	anySent := false
	for _, e := range entries {
		sent, err := c.flushEntry(e, force)
		if err != nil {
			return err
		}
		anySent = anySent || sent
	}
	if anySent && c.cfg.ArtSync {
		return c.sendSync()
	}
	return nil
}

func (c *Controller) flushEntry(e *entry, force bool) (bool, error) {
	if !force && !e.universe.IsDirty() {
		return false, nil
	}
	frame := e.universe.Snapshot()
	if err := e.sender.SendRaw(frame[:], true); err != nil {
		return false, err
	}
	e.universe.ConsumeDirty()
	return true, nil
}

// sendSync issues exactly one sync pulse via the first added sender
// that implements Syncer.
func (c *Controller) sendSync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.order {
		if s, ok := c.universes[id].sender.(Syncer); ok {
			return s.SendSync()
		}
	}
	return nil
}

// artnetSender adapts *artnet.Sender to the controller's Sender/Syncer
// interfaces for a fixed universe.
type artnetSender struct {
	sender   *artnet.Sender
	universe int
}

func (a *artnetSender) SendRaw(frame []byte, useRawDmxValues bool) error {
	return a.sender.SendDMXBroadcast(a.universe, frame)
}

func (a *artnetSender) SendSync() error {
	return a.sender.SendSync()
}

// sacnSender adapts *sacn.Sender to the controller's Sender interface
// for a fixed universe. sACN has no sync-pulse equivalent, so this type
// does not implement Syncer.
type sacnSender struct {
	sender   *sacn.Sender
	universe uint16
}

func (s *sacnSender) SendRaw(frame []byte, useRawDmxValues bool) error {
	return s.sender.Send(sacn.PacketOptions{
		Universe:        s.universe,
		Raw:             frame,
		UseRawDmxValues: useRawDmxValues,
	})
}
