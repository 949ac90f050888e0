// Package config loads the TOML configuration shared by the CLI: static
// patch targets plus controller and RDMnet client settings.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Protocol names a wire protocol a universe address belongs to.
type Protocol string

const (
	ProtocolArtNet Protocol = "artnet"
	ProtocolSACN   Protocol = "sacn"
)

// Universe identifies a protocol-scoped universe number. For Art-Net,
// Number is the 15-bit Port-Address (Net<<8 | SubNet<<4 | Universe);
// for sACN it is the raw 1-63999 universe number.
type Universe struct {
	Protocol Protocol
	Number   int
}

// String renders the canonical "protocol:number" form; for Art-Net it
// uses net.subnet.universe dotted notation.
func (u Universe) String() string {
	if u.Protocol == ProtocolArtNet {
		net := (u.Number >> 8) & 0x7F
		sub := (u.Number >> 4) & 0x0F
		uni := u.Number & 0x0F
		return fmt.Sprintf("%s:%d.%d.%d", u.Protocol, net, sub, uni)
	}
	return fmt.Sprintf("%s:%d", u.Protocol, u.Number)
}

// ParseUniverse parses "protocol:universepart", e.g. "artnet:0.0.1" or
// "sacn:100".
func ParseUniverse(s string) (Universe, error) {
	proto, rest, err := splitProtocol(s)
	if err != nil {
		return Universe{}, err
	}
	n, err := parseUniverseNumber(rest, proto)
	if err != nil {
		return Universe{}, err
	}
	return Universe{Protocol: proto, Number: n}, nil
}

func splitProtocol(s string) (Protocol, string, error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("config: missing protocol prefix in %q", s)
	}
	proto := Protocol(s[:idx])
	if proto != ProtocolArtNet && proto != ProtocolSACN {
		return "", "", fmt.Errorf("config: unknown protocol %q", s[:idx])
	}
	return proto, s[idx+1:], nil
}

// parseUniverseNumber parses the universe portion of an address for the
// given protocol. Art-Net accepts either "net.subnet.universe" dotted
// notation or a plain combined Port-Address integer; sACN accepts only
// a plain decimal in [1,63999].
func parseUniverseNumber(s string, proto Protocol) (int, error) {
	switch proto {
	case ProtocolArtNet:
		if strings.Contains(s, ".") {
			parts := strings.Split(s, ".")
			if len(parts) != 3 {
				return 0, fmt.Errorf("config: invalid artnet address %q: expected net.subnet.universe", s)
			}
			net, err := strconv.Atoi(parts[0])
			if err != nil || net < 0 || net > 127 {
				return 0, fmt.Errorf("config: invalid net in %q", s)
			}
			sub, err := strconv.Atoi(parts[1])
			if err != nil || sub < 0 || sub > 15 {
				return 0, fmt.Errorf("config: invalid subnet in %q", s)
			}
			uni, err := strconv.Atoi(parts[2])
			if err != nil || uni < 0 || uni > 15 {
				return 0, fmt.Errorf("config: invalid universe in %q", s)
			}
			return (net << 8) | (sub << 4) | uni, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 32767 {
			return 0, fmt.Errorf("config: invalid artnet port-address %q", s)
		}
		return n, nil
	case ProtocolSACN:
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 63999 {
			return 0, fmt.Errorf("config: invalid sacn universe %q", s)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("config: unknown protocol %q", proto)
	}
}

// parseChannelRange parses "N", "N-" or "N-M" into a 1-512 inclusive
// channel range.
func parseChannelRange(s string, start, end *int) error {
	if s == "" {
		return fmt.Errorf("config: empty channel range")
	}
	if idx := strings.Index(s, "-"); idx >= 0 {
		a, err := strconv.Atoi(s[:idx])
		if err != nil {
			return fmt.Errorf("config: invalid channel range %q", s)
		}
		tail := s[idx+1:]
		b := 512
		if tail != "" {
			b, err = strconv.Atoi(tail)
			if err != nil {
				return fmt.Errorf("config: invalid channel range %q", s)
			}
		}
		*start, *end = a, b
	} else {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("config: invalid channel %q", s)
		}
		*start, *end = n, n
	}
	if *start < 1 || *end > 512 || *start > *end {
		return fmt.Errorf("config: channel range %q out of bounds", s)
	}
	return nil
}

// FromAddr is a patch source: a universe plus an inclusive channel
// range, defaulting to the full 1-512 range when unspecified.
type FromAddr struct {
	Universe     Universe
	ChannelStart int
	ChannelEnd   int
}

func (a *FromAddr) parse(s string) error {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("config: invalid from-address %q", s)
	}
	u, err := ParseUniverse(parts[0] + ":" + parts[1])
	if err != nil {
		return err
	}
	a.Universe = u
	if len(parts) == 3 {
		var start, end int
		if err := parseChannelRange(parts[2], &start, &end); err != nil {
			return err
		}
		a.ChannelStart, a.ChannelEnd = start, end
	} else {
		a.ChannelStart, a.ChannelEnd = 1, 512
	}
	return nil
}

func (a FromAddr) String() string {
	if a.ChannelStart == 1 && a.ChannelEnd == 512 {
		return a.Universe.String()
	}
	return fmt.Sprintf("%s:%d-%d", a.Universe.String(), a.ChannelStart, a.ChannelEnd)
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (a *FromAddr) UnmarshalText(text []byte) error {
	return a.parse(string(text))
}

// ToAddr is a patch destination: a universe plus a single starting
// channel, defaulting to channel 1 when unspecified.
type ToAddr struct {
	Universe     Universe
	ChannelStart int
}

func (a *ToAddr) parse(s string) error {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("config: invalid to-address %q", s)
	}
	u, err := ParseUniverse(parts[0] + ":" + parts[1])
	if err != nil {
		return err
	}
	a.Universe = u
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 || n > 512 {
			return fmt.Errorf("config: invalid to-channel %q", s)
		}
		a.ChannelStart = n
	} else {
		a.ChannelStart = 1
	}
	return nil
}

func (a ToAddr) String() string {
	if a.ChannelStart == 1 {
		return a.Universe.String()
	}
	return fmt.Sprintf("%s:%d", a.Universe.String(), a.ChannelStart)
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (a *ToAddr) UnmarshalText(text []byte) error {
	return a.parse(string(text))
}

// Target is one static patch rule: copy the From range into To's
// universe starting at To.ChannelStart.
type Target struct {
	From FromAddr `toml:"from"`
	To   ToAddr   `toml:"to"`
}

// ControllerSettings configures the DMX controller the CLI builds.
type ControllerSettings struct {
	Protocol string `toml:"protocol"` // "artnet" or "sacn"
	ArtSync  bool   `toml:"art_sync"`
}

// RdmnetSettings configures the RDMnet client the CLI optionally starts.
type RdmnetSettings struct {
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	Scope               string `toml:"scope"`
	Role                string `toml:"role"`
	EndpointID          int    `toml:"endpoint_id"`
	EndpointRole        string `toml:"endpoint_role"`
	Profiles            []int  `toml:"profiles"`
	TLS                 bool   `toml:"tls"`
	TLSStrict           *bool  `toml:"tls_strict"` // nil means strict
	HeartbeatIntervalMs int    `toml:"heartbeat_interval_ms"`
	RequestTimeoutMs    int    `toml:"request_timeout_ms"`
}

// Config is the top-level TOML document.
type Config struct {
	Targets    []Target           `toml:"target"`
	Controller ControllerSettings `toml:"controller"`
	Rdmnet     RdmnetSettings     `toml:"rdmnet"`
}

// Load reads and validates a TOML config file, applying defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load config: %w", err)
	}

	if cfg.Controller.Protocol == "" {
		cfg.Controller.Protocol = "artnet"
	}
	if cfg.Rdmnet.Port == 0 {
		cfg.Rdmnet.Port = 8888
	}
	if cfg.Rdmnet.Scope == "" {
		cfg.Rdmnet.Scope = "default"
	}
	if cfg.Rdmnet.HeartbeatIntervalMs == 0 {
		cfg.Rdmnet.HeartbeatIntervalMs = 15000
	}
	if cfg.Rdmnet.RequestTimeoutMs == 0 {
		cfg.Rdmnet.RequestTimeoutMs = 5000
	}

	for i, t := range cfg.Targets {
		span := t.From.ChannelEnd - t.From.ChannelStart
		if t.To.ChannelStart+span > 512 {
			return nil, fmt.Errorf("config: target %d: destination range exceeds 512 channels", i)
		}
	}

	return &cfg, nil
}
