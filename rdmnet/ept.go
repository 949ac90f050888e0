package rdmnet

import (
	"encoding/binary"
	"fmt"
)

// EptData carries a vendor-defined payload tagged by manufacturer and
// protocol id, used for passthrough traffic RDMnet itself does not
// interpret.
type EptData struct {
	Sequence uint32
	Manu     uint16
	Proto    uint16
	Payload  []byte
}

func EncodeEptData(m EptData) []byte {
	buf := make([]byte, 16+len(m.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(EptVectorData))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.Manu)
	binary.BigEndian.PutUint16(buf[10:12], m.Proto)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(m.Payload)))
	copy(buf[16:], m.Payload)
	return buf
}

func decodeEptData(data []byte) (EptData, error) {
	if len(data) < 16 {
		return EptData{}, fmt.Errorf("rdmnet: decode EPT Data: %w", errShortMessage)
	}
	payloadLen := int(binary.BigEndian.Uint32(data[12:16]))
	if len(data) != 16+payloadLen {
		return EptData{}, fmt.Errorf("rdmnet: decode EPT Data: length: %w", errShortMessage)
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[16:])
	return EptData{
		Sequence: binary.BigEndian.Uint32(data[4:8]),
		Manu:     binary.BigEndian.Uint16(data[8:10]),
		Proto:    binary.BigEndian.Uint16(data[10:12]),
		Payload:  payload,
	}, nil
}

// EptStatus reports an EPT-layer error or acknowledgement.
type EptStatus struct {
	Sequence uint32
	Status   uint16
	Text     string
}

func EncodeEptStatus(m EptStatus) []byte {
	text := []byte(m.Text)
	buf := make([]byte, 12+len(text))
	binary.BigEndian.PutUint32(buf[0:4], uint32(EptVectorStatus))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.Status)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(text)))
	copy(buf[12:], text)
	return buf
}

func decodeEptStatus(data []byte) (EptStatus, error) {
	if len(data) < 12 {
		return EptStatus{}, fmt.Errorf("rdmnet: decode EPT Status: %w", errShortMessage)
	}
	textLen := int(binary.BigEndian.Uint16(data[10:12]))
	if len(data) != 12+textLen {
		return EptStatus{}, fmt.Errorf("rdmnet: decode EPT Status: length: %w", errShortMessage)
	}
	return EptStatus{
		Sequence: binary.BigEndian.Uint32(data[4:8]),
		Status:   binary.BigEndian.Uint16(data[8:10]),
		Text:     string(data[12:]),
	}, nil
}

// EptMessage is the decoded result of DecodeEpt.
type EptMessage struct {
	Vector EptVector
	Data   *EptData
	Status *EptStatus
}

// DecodeEpt dispatches on the inner vector and strictly rejects
// unknown vectors.
func DecodeEpt(data []byte) (*EptMessage, error) {
	if len(data) < 8 {
		return nil, newError(DomainEPT, CodeEPTDecodeError, fmt.Errorf("%w", errShortMessage))
	}
	vector := EptVector(binary.BigEndian.Uint32(data[0:4]))

	switch vector {
	case EptVectorData:
		m, err := decodeEptData(data)
		if err != nil {
			return nil, newError(DomainEPT, CodeEPTDecodeError, err)
		}
		return &EptMessage{Vector: vector, Data: &m}, nil
	case EptVectorStatus:
		m, err := decodeEptStatus(data)
		if err != nil {
			return nil, newError(DomainEPT, CodeEPTDecodeError, err)
		}
		return &EptMessage{Vector: vector, Status: &m}, nil
	default:
		return nil, newError(DomainEPT, CodeEPTDecodeError, fmt.Errorf("unknown EPT vector %#x", uint32(vector)))
	}
}
