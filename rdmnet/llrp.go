package rdmnet

import (
	"encoding/binary"
	"fmt"

	"github.com/gopatchy/dmxnet/rdm"
	"github.com/gopatchy/dmxnet/uid"
)

// LlrpProbeRequest asks every device whose UID falls in
// [LowerUID, UpperUID] to identify itself.
type LlrpProbeRequest struct {
	Sequence uint32
	LowerUID uid.UID
	UpperUID uid.UID
}

func EncodeLlrpProbeRequest(m LlrpProbeRequest) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint32(buf[0:4], uint32(LlrpVectorProbeRequest))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	lower := m.LowerUID.Encode()
	upper := m.UpperUID.Encode()
	copy(buf[8:14], lower[:])
	copy(buf[14:20], upper[:])
	return buf
}

func decodeLlrpProbeRequest(data []byte) (LlrpProbeRequest, error) {
	if len(data) != 20 {
		return LlrpProbeRequest{}, fmt.Errorf("rdmnet: decode LLRP ProbeRequest: length %d != 20: %w", len(data), errShortMessage)
	}
	lower, err := uid.Decode(data[8:14])
	if err != nil {
		return LlrpProbeRequest{}, fmt.Errorf("rdmnet: decode LLRP ProbeRequest: lower UID: %w", err)
	}
	upper, err := uid.Decode(data[14:20])
	if err != nil {
		return LlrpProbeRequest{}, fmt.Errorf("rdmnet: decode LLRP ProbeRequest: upper UID: %w", err)
	}
	return LlrpProbeRequest{
		Sequence: binary.BigEndian.Uint32(data[4:8]),
		LowerUID: lower,
		UpperUID: upper,
	}, nil
}

// LlrpProbeReply is a target's response to a ProbeRequest whose range
// contains it.
type LlrpProbeReply struct {
	Sequence  uint32
	TargetUID uid.UID
}

func EncodeLlrpProbeReply(m LlrpProbeReply) []byte {
	buf := make([]byte, 14)
	binary.BigEndian.PutUint32(buf[0:4], uint32(LlrpVectorProbeReply))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	target := m.TargetUID.Encode()
	copy(buf[8:14], target[:])
	return buf
}

func decodeLlrpProbeReply(data []byte) (LlrpProbeReply, error) {
	if len(data) != 14 {
		return LlrpProbeReply{}, fmt.Errorf("rdmnet: decode LLRP ProbeReply: length %d != 14: %w", len(data), errShortMessage)
	}
	target, err := uid.Decode(data[8:14])
	if err != nil {
		return LlrpProbeReply{}, fmt.Errorf("rdmnet: decode LLRP ProbeReply: target UID: %w", err)
	}
	return LlrpProbeReply{
		Sequence:  binary.BigEndian.Uint32(data[4:8]),
		TargetUID: target,
	}, nil
}

// LlrpRdm carries an RDM command or response addressed to a specific
// target over the LLRP side channel.
type LlrpRdm struct {
	Sequence  uint32
	TargetUID uid.UID
	Rdm       rdm.Frame
}

func encodeLlrpRdm(vector LlrpVector, sequence uint32, targetUID uid.UID, rdmBytes []byte) []byte {
	buf := make([]byte, 16+len(rdmBytes))
	binary.BigEndian.PutUint32(buf[0:4], uint32(vector))
	binary.BigEndian.PutUint32(buf[4:8], sequence)
	target := targetUID.Encode()
	copy(buf[8:14], target[:])
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(rdmBytes)))
	copy(buf[16:], rdmBytes)
	return buf
}

func EncodeLlrpRdmCommand(sequence uint32, targetUID uid.UID, req rdm.Frame) ([]byte, error) {
	wire, err := rdm.Encode(req)
	if err != nil {
		return nil, err
	}
	return encodeLlrpRdm(LlrpVectorRdmCommand, sequence, targetUID, wire), nil
}

func EncodeLlrpRdmResponse(sequence uint32, targetUID uid.UID, resp rdm.Frame) ([]byte, error) {
	wire, err := rdm.Encode(resp)
	if err != nil {
		return nil, err
	}
	return encodeLlrpRdm(LlrpVectorRdmResponse, sequence, targetUID, wire), nil
}

func decodeLlrpRdm(data []byte) (LlrpRdm, error) {
	if len(data) < 16 {
		return LlrpRdm{}, fmt.Errorf("rdmnet: decode LLRP RDM: %w", errShortMessage)
	}
	target, err := uid.Decode(data[8:14])
	if err != nil {
		return LlrpRdm{}, fmt.Errorf("rdmnet: decode LLRP RDM: target UID: %w", err)
	}
	rdmLen := int(binary.BigEndian.Uint16(data[14:16]))
	if len(data) != 16+rdmLen {
		return LlrpRdm{}, fmt.Errorf("rdmnet: decode LLRP RDM: length: %w", errShortMessage)
	}
	frame, err := rdm.Decode(data[16:])
	if err != nil {
		return LlrpRdm{}, fmt.Errorf("rdmnet: decode LLRP RDM: embedded frame: %w", err)
	}
	return LlrpRdm{
		Sequence:  binary.BigEndian.Uint32(data[4:8]),
		TargetUID: target,
		Rdm:       frame,
	}, nil
}

// LlrpMessage is the decoded result of DecodeLlrp.
type LlrpMessage struct {
	Vector       LlrpVector
	ProbeRequest *LlrpProbeRequest
	ProbeReply   *LlrpProbeReply
	RdmCommand   *LlrpRdm
	RdmResponse  *LlrpRdm
}

// DecodeLlrp dispatches on the inner vector and strictly rejects
// unknown vectors.
func DecodeLlrp(data []byte) (*LlrpMessage, error) {
	if len(data) < 8 {
		return nil, newError(DomainLLRP, CodeLLRPDecodeError, fmt.Errorf("%w", errShortMessage))
	}
	vector := LlrpVector(binary.BigEndian.Uint32(data[0:4]))

	switch vector {
	case LlrpVectorProbeRequest:
		m, err := decodeLlrpProbeRequest(data)
		if err != nil {
			return nil, newError(DomainLLRP, CodeLLRPDecodeError, err)
		}
		return &LlrpMessage{Vector: vector, ProbeRequest: &m}, nil
	case LlrpVectorProbeReply:
		m, err := decodeLlrpProbeReply(data)
		if err != nil {
			return nil, newError(DomainLLRP, CodeLLRPDecodeError, err)
		}
		return &LlrpMessage{Vector: vector, ProbeReply: &m}, nil
	case LlrpVectorRdmCommand:
		m, err := decodeLlrpRdm(data)
		if err != nil {
			return nil, newError(DomainLLRP, CodeLLRPDecodeError, err)
		}
		return &LlrpMessage{Vector: vector, RdmCommand: &m}, nil
	case LlrpVectorRdmResponse:
		m, err := decodeLlrpRdm(data)
		if err != nil {
			return nil, newError(DomainLLRP, CodeLLRPDecodeError, err)
		}
		return &LlrpMessage{Vector: vector, RdmResponse: &m}, nil
	default:
		return nil, newError(DomainLLRP, CodeLLRPDecodeError, fmt.Errorf("unknown LLRP vector %#x", uint32(vector)))
	}
}
