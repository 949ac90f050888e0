package rdmnet

import (
	"encoding/binary"
	"fmt"

	"github.com/gopatchy/dmxnet/rdm"
	"github.com/gopatchy/dmxnet/uid"
)

// RptStatus carries a human-readable RPT-layer status.
type RptStatus struct {
	Sequence uint32
	Status   uint16
	Text     string
}

func EncodeRptStatus(m RptStatus) []byte {
	text := []byte(m.Text)
	buf := make([]byte, 12+len(text))
	binary.BigEndian.PutUint32(buf[0:4], uint32(RptVectorStatus))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.Status)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(text)))
	copy(buf[12:], text)
	return buf
}

func decodeRptStatus(data []byte) (RptStatus, error) {
	if len(data) < 12 {
		return RptStatus{}, fmt.Errorf("rdmnet: decode RPT Status: %w", errShortMessage)
	}
	textLen := int(binary.BigEndian.Uint16(data[10:12]))
	if len(data) != 12+textLen {
		return RptStatus{}, fmt.Errorf("rdmnet: decode RPT Status: length: %w", errShortMessage)
	}
	return RptStatus{
		Sequence: binary.BigEndian.Uint32(data[4:8]),
		Status:   binary.BigEndian.Uint16(data[8:10]),
		Text:     string(data[12:]),
	}, nil
}

// RptRdmCommand carries an embedded RDM frame plus the endpoint it
// addresses and a mirror of the frame's own UID pair.
type RptRdmCommand struct {
	Sequence   uint32
	EndpointID uint16
	OuterDst   uid.UID
	OuterSrc   uid.UID
	Rdm        rdm.Frame
}

func encodeRptRdm(vector RptVector, sequence uint32, endpointID uint16, rdmBytes []byte) ([]byte, error) {
	if len(rdmBytes) < 15 {
		return nil, fmt.Errorf("rdmnet: encode RPT RDM: embedded frame too short")
	}
	outerDst := rdmBytes[3:9]
	outerSrc := rdmBytes[9:15]

	buf := make([]byte, 24+len(rdmBytes))
	binary.BigEndian.PutUint32(buf[0:4], uint32(vector))
	binary.BigEndian.PutUint32(buf[4:8], sequence)
	binary.BigEndian.PutUint16(buf[8:10], endpointID)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(rdmBytes)))
	copy(buf[12:18], outerDst)
	copy(buf[18:24], outerSrc)
	copy(buf[24:], rdmBytes)
	return buf, nil
}

// EncodeRptRdmCommand builds an RPT RdmCommand message wrapping the
// wire form of req. The outer UID pair is copied from req's own
// destination/source.
func EncodeRptRdmCommand(sequence uint32, endpointID uint16, req rdm.Frame) ([]byte, error) {
	wire, err := rdm.Encode(req)
	if err != nil {
		return nil, err
	}
	return encodeRptRdm(RptVectorRdmCommand, sequence, endpointID, wire)
}

// EncodeRptRdmResponse builds an RPT RdmResponse message wrapping the
// wire form of resp.
func EncodeRptRdmResponse(sequence uint32, endpointID uint16, resp rdm.Frame) ([]byte, error) {
	wire, err := rdm.Encode(resp)
	if err != nil {
		return nil, err
	}
	return encodeRptRdm(RptVectorRdmResponse, sequence, endpointID, wire)
}

func decodeRptRdm(data []byte) (RptRdmCommand, error) {
	if len(data) < 24 {
		return RptRdmCommand{}, fmt.Errorf("rdmnet: decode RPT RDM: %w", errShortMessage)
	}
	rdmLen := int(binary.BigEndian.Uint16(data[10:12]))
	if len(data) != 24+rdmLen {
		return RptRdmCommand{}, fmt.Errorf("rdmnet: decode RPT RDM: length: %w", errShortMessage)
	}

	outerDst, err := uid.Decode(data[12:18])
	if err != nil {
		return RptRdmCommand{}, fmt.Errorf("rdmnet: decode RPT RDM: outer destination: %w", err)
	}
	outerSrc, err := uid.Decode(data[18:24])
	if err != nil {
		return RptRdmCommand{}, fmt.Errorf("rdmnet: decode RPT RDM: outer source: %w", err)
	}

	frame, err := rdm.Decode(data[24:])
	if err != nil {
		return RptRdmCommand{}, fmt.Errorf("rdmnet: decode RPT RDM: embedded frame: %w", err)
	}

	if outerDst != frame.Destination || outerSrc != frame.Source {
		return RptRdmCommand{}, fmt.Errorf("rdmnet: decode RPT RDM: outer UID pair does not mirror embedded RDM UIDs")
	}

	return RptRdmCommand{
		Sequence:   binary.BigEndian.Uint32(data[4:8]),
		EndpointID: binary.BigEndian.Uint16(data[8:10]),
		OuterDst:   outerDst,
		OuterSrc:   outerSrc,
		Rdm:        frame,
	}, nil
}

// RptEndpointAdvertisement announces a device's role/profile support
// for an endpoint.
type RptEndpointAdvertisement struct {
	Sequence   uint32
	EndpointID uint16
	Role       Role
	Profiles   []uint16
}

func EncodeRptEndpointAdvertisement(m RptEndpointAdvertisement) []byte {
	if len(m.Profiles) > 255 {
		m.Profiles = m.Profiles[:255]
	}
	buf := make([]byte, 11, 12+len(m.Profiles)*2)
	binary.BigEndian.PutUint32(buf[0:4], uint32(RptVectorEndpointAdvertisement))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.EndpointID)
	buf[10] = byte(m.Role)
	return append(buf, encodeProfileList(m.Profiles)...)
}

func decodeRptEndpointAdvertisement(data []byte) (RptEndpointAdvertisement, error) {
	if len(data) < 12 {
		return RptEndpointAdvertisement{}, fmt.Errorf("rdmnet: decode RPT EndpointAdvertisement: %w", errShortMessage)
	}
	if err := validateRole(Role(data[10])); err != nil {
		return RptEndpointAdvertisement{}, fmt.Errorf("rdmnet: decode RPT EndpointAdvertisement: %w", err)
	}
	profiles, consumed, err := decodeProfileList(data[11:])
	if err != nil {
		return RptEndpointAdvertisement{}, err
	}
	if 11+consumed != len(data) {
		return RptEndpointAdvertisement{}, fmt.Errorf("rdmnet: decode RPT EndpointAdvertisement: trailing bytes: %w", errShortMessage)
	}
	return RptEndpointAdvertisement{
		Sequence:   binary.BigEndian.Uint32(data[4:8]),
		EndpointID: binary.BigEndian.Uint16(data[8:10]),
		Role:       Role(data[10]),
		Profiles:   profiles,
	}, nil
}

// RptEndpointAdvertisementAck answers an EndpointAdvertisement.
type RptEndpointAdvertisementAck struct {
	Sequence   uint32
	EndpointID uint16
	Accepted   bool
	Status     uint16
}

func EncodeRptEndpointAdvertisementAck(m RptEndpointAdvertisementAck) []byte {
	buf := make([]byte, 13)
	binary.BigEndian.PutUint32(buf[0:4], uint32(RptVectorEndpointAdvertisementAck))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.EndpointID)
	if m.Accepted {
		buf[10] = 1
	}
	binary.BigEndian.PutUint16(buf[11:13], m.Status)
	return buf
}

func decodeRptEndpointAdvertisementAck(data []byte) (RptEndpointAdvertisementAck, error) {
	if len(data) != 13 {
		return RptEndpointAdvertisementAck{}, fmt.Errorf("rdmnet: decode RPT EndpointAdvertisementAck: length %d != 13: %w", len(data), errShortMessage)
	}
	return RptEndpointAdvertisementAck{
		Sequence:   binary.BigEndian.Uint32(data[4:8]),
		EndpointID: binary.BigEndian.Uint16(data[8:10]),
		Accepted:   data[10] != 0,
		Status:     binary.BigEndian.Uint16(data[11:13]),
	}, nil
}

// RptMessage is the decoded result of DecodeRpt: exactly one field is
// non-nil, matching Vector.
type RptMessage struct {
	Vector                   RptVector
	Status                   *RptStatus
	RdmCommand               *RptRdmCommand
	RdmResponse              *RptRdmCommand
	EndpointAdvertisement    *RptEndpointAdvertisement
	EndpointAdvertisementAck *RptEndpointAdvertisementAck
}

// DecodeRpt dispatches on the inner vector and strictly rejects
// unknown vectors.
func DecodeRpt(data []byte) (*RptMessage, error) {
	if len(data) < 8 {
		return nil, newError(DomainRPT, CodeRPTDecodeError, fmt.Errorf("%w", errShortMessage))
	}
	vector := RptVector(binary.BigEndian.Uint32(data[0:4]))

	switch vector {
	case RptVectorStatus:
		m, err := decodeRptStatus(data)
		if err != nil {
			return nil, newError(DomainRPT, CodeRPTDecodeError, err)
		}
		return &RptMessage{Vector: vector, Status: &m}, nil
	case RptVectorRdmCommand:
		m, err := decodeRptRdm(data)
		if err != nil {
			return nil, newError(DomainRPT, CodeRPTDecodeError, err)
		}
		return &RptMessage{Vector: vector, RdmCommand: &m}, nil
	case RptVectorRdmResponse:
		m, err := decodeRptRdm(data)
		if err != nil {
			return nil, newError(DomainRPT, CodeRPTDecodeError, err)
		}
		return &RptMessage{Vector: vector, RdmResponse: &m}, nil
	case RptVectorEndpointAdvertisement:
		m, err := decodeRptEndpointAdvertisement(data)
		if err != nil {
			return nil, newError(DomainRPT, CodeRPTDecodeError, err)
		}
		return &RptMessage{Vector: vector, EndpointAdvertisement: &m}, nil
	case RptVectorEndpointAdvertisementAck:
		m, err := decodeRptEndpointAdvertisementAck(data)
		if err != nil {
			return nil, newError(DomainRPT, CodeRPTDecodeError, err)
		}
		return &RptMessage{Vector: vector, EndpointAdvertisementAck: &m}, nil
	default:
		return nil, newError(DomainRPT, CodeRPTDecodeError, fmt.Errorf("unknown RPT vector %#x", uint32(vector)))
	}
}
