package rdm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gopatchy/dmxnet/uid"
)

// ErrNotSupported is returned by a Transport whose SendMute is a no-op for
// transports that have no native mute operation.
var ErrNotSupported = errors.New("rdm: operation not supported by transport")

// ErrMalformedDiscoveryResponse is returned by DecodeDiscoveryResponse when
// the buffer does not carry a well-formed manchester-like preamble.
var ErrMalformedDiscoveryResponse = errors.New("rdm: malformed discovery response")

const (
	discoveryPreambleLen = 7
	discoveryPreamble    = 0xFE
	discoverySeparator   = 0xAA
	discoveryPayloadLen  = 16 // 12 masked UID bytes + 4 masked checksum bytes
)

// Transport is the abstract RDM bus a Discover call drives. Implementations
// might be a real Art-Net RDM client, an RDMnet RPT connection, or a test
// double.
type Transport interface {
	// SendDiscoveryUniqueBranch transmits DISC_UNIQUE_BRANCH(lo,hi) and
	// returns every raw response buffer captured during the transport's
	// own response window (zero, one, or more).
	SendDiscoveryUniqueBranch(ctx context.Context, lo, hi uid.UID) ([][]byte, error)

	// SendMute transmits a native DISC_MUTE/DISC_UN_MUTE for u. Transports
	// without a native primitive return ErrNotSupported so Discover falls
	// back to SendRequest.
	SendMute(ctx context.Context, u uid.UID, unmute bool) error

	// SendRequest transmits a generic RDM request frame as a fallback for
	// mute/unmute when SendMute is unsupported. The response, if any, is
	// not used by Discover.
	SendRequest(ctx context.Context, frame Frame) error
}

// DecodeDiscoveryResponse recovers the UID and validates the checksum of a
// single DISC_UNIQUE_BRANCH response buffer encoded with the E1.20
// manchester-like preamble: 7 bytes of 0xFE, a 0xAA separator, 12 masked
// UID bytes, and 4 masked checksum bytes.
func DecodeDiscoveryResponse(data []byte) (uid.UID, error) {
	if len(data) < discoveryPreambleLen+1+discoveryPayloadLen {
		return uid.UID{}, fmt.Errorf("rdm: discovery response too short: %w", ErrMalformedDiscoveryResponse)
	}
	for i := 0; i < discoveryPreambleLen; i++ {
		if data[i] != discoveryPreamble {
			return uid.UID{}, fmt.Errorf("rdm: discovery response bad preamble byte %d: %w", i, ErrMalformedDiscoveryResponse)
		}
	}
	if data[discoveryPreambleLen] != discoverySeparator {
		return uid.UID{}, fmt.Errorf("rdm: discovery response missing separator: %w", ErrMalformedDiscoveryResponse)
	}

	payload := data[discoveryPreambleLen+1 : discoveryPreambleLen+1+discoveryPayloadLen]

	unmasked := make([]byte, discoveryPayloadLen/2)
	for i := range unmasked {
		unmasked[i] = payload[2*i] & payload[2*i+1]
	}

	uidBytes := unmasked[0:6]
	checksumBytes := unmasked[6:8]

	u, err := uid.Decode(uidBytes)
	if err != nil {
		return uid.UID{}, err
	}

	want := binary.BigEndian.Uint16(checksumBytes)
	var sum uint16
	for _, b := range uidBytes {
		sum += uint16(b)
	}
	if sum != want {
		return uid.UID{}, fmt.Errorf("rdm: discovery response checksum %04x != computed %04x: %w", want, sum, ErrChecksumMismatch)
	}

	return u, nil
}

// Result is one discovered RDM device.
type Result struct {
	UID   uid.UID
	Muted bool
}

// Options configures a Discover run.
type Options struct {
	// MuteFound sends DISC_MUTE to each device as it is found. Defaults
	// to true in DiscoverDevices when left as the zero value caller must
	// set explicitly via DiscoverDevicesWithOptions.
	MuteFound bool
	// UnmuteAtEnd sends DISC_UN_MUTE to every muted device once discovery
	// completes.
	UnmuteAtEnd bool
}

// DiscoverDevices runs the standard binary-split discovery algorithm
// (muting each found device, unmuting none) over the full UID space.
func DiscoverDevices(ctx context.Context, t Transport) ([]Result, error) {
	return DiscoverDevicesWithOptions(ctx, t, Options{MuteFound: true})
}

// DiscoverDevicesWithOptions runs binary-split discovery over the full UID
// space with explicit mute/unmute behavior.
func DiscoverDevicesWithOptions(ctx context.Context, t Transport, opts Options) ([]Result, error) {
	d := &discoverer{t: t, opts: opts}
	if err := d.split(ctx, uid.Min, uid.Max); err != nil {
		return nil, err
	}
	if opts.UnmuteAtEnd {
		for _, r := range d.results {
			if err := d.mute(ctx, r.UID, true); err != nil {
				return nil, err
			}
		}
	}
	return d.results, nil
}

type discoverer struct {
	t       Transport
	opts    Options
	results []Result
	found   int
}

func (d *discoverer) split(ctx context.Context, lo, hi uid.UID) error {
	responses, err := d.t.SendDiscoveryUniqueBranch(ctx, lo, hi)
	if err != nil {
		return err
	}

	var decoded []uid.UID
	for _, raw := range responses {
		u, err := DecodeDiscoveryResponse(raw)
		if err != nil {
			continue
		}
		decoded = append(decoded, u)
	}

	switch {
	case len(decoded) == 0:
		return nil

	case len(decoded) == 1:
		u := decoded[0]
		if !uid.InRange(u, lo, hi) {
			return nil
		}
		muted := false
		if d.opts.MuteFound {
			if err := d.mute(ctx, u, false); err != nil {
				return err
			}
			muted = true
		}
		d.results = append(d.results, Result{UID: u, Muted: muted})
		d.found++
		return nil

	default:
		// A collision on a single-UID range cannot be split further;
		// treat it as noise and stop, matching what a retry at a higher
		// level would eventually converge to.
		if lo == hi {
			return nil
		}
		mid, err := uid.Midpoint(lo, hi)
		if err != nil {
			return err
		}
		if err := d.split(ctx, lo, mid); err != nil {
			return err
		}
		nextLo := bump(mid)
		return d.split(ctx, nextLo, hi)
	}
}

func (d *discoverer) mute(ctx context.Context, u uid.UID, unmute bool) error {
	err := d.t.SendMute(ctx, u, unmute)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotSupported) {
		return err
	}

	pid := uint16(PIDDiscMute)
	if unmute {
		pid = PIDDiscUnMute
	}
	return d.t.SendRequest(ctx, Frame{
		Destination:    u,
		TransactionNum: uint8(d.found % 256),
		CommandClass:   CCDiscoveryCommand,
		PID:            pid,
	})
}

// bump returns the UID one greater than u; it saturates at uid.Max.
func bump(u uid.UID) uid.UID {
	if u == uid.Max {
		return u
	}
	v := u.ToUint64() + 1
	return uid.FromUint64(v)
}
