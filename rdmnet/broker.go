package rdmnet

import (
	"encoding/binary"
	"fmt"
)

// BrokerConnectRequest is sent by a client to join a scope.
type BrokerConnectRequest struct {
	Sequence uint32
	Role     Role
	Scope    string
}

// EncodeConnectRequest builds the inner payload (vector through scope).
func EncodeConnectRequest(m BrokerConnectRequest) []byte {
	scope := []byte(m.Scope)
	buf := make([]byte, 12+len(scope))
	binary.BigEndian.PutUint32(buf[0:4], uint32(BrokerVectorConnectRequest))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	buf[8] = byte(m.Role)
	buf[9] = 0
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(scope)))
	copy(buf[12:], scope)
	return buf
}

func decodeConnectRequest(data []byte) (BrokerConnectRequest, error) {
	if len(data) < 12 {
		return BrokerConnectRequest{}, fmt.Errorf("rdmnet: decode ConnectRequest: %w", errShortMessage)
	}
	if err := validateRole(Role(data[8])); err != nil {
		return BrokerConnectRequest{}, fmt.Errorf("rdmnet: decode ConnectRequest: %w", err)
	}
	if data[9] != 0 {
		return BrokerConnectRequest{}, fmt.Errorf("rdmnet: decode ConnectRequest: reserved byte %#x: %w", data[9], errReservedByte)
	}
	scopeLen := int(binary.BigEndian.Uint16(data[10:12]))
	if len(data) != 12+scopeLen {
		return BrokerConnectRequest{}, fmt.Errorf("rdmnet: decode ConnectRequest: length: %w", errShortMessage)
	}
	return BrokerConnectRequest{
		Sequence: binary.BigEndian.Uint32(data[4:8]),
		Role:     Role(data[8]),
		Scope:    string(data[12:]),
	}, nil
}

// BrokerConnectReply answers ConnectRequest.
type BrokerConnectReply struct {
	Sequence   uint32
	StatusCode BrokerStatusCode
	ClientID   uint32
	Text       string
}

func EncodeConnectReply(m BrokerConnectReply) []byte {
	text := []byte(m.Text)
	buf := make([]byte, 14+len(text))
	binary.BigEndian.PutUint32(buf[0:4], uint32(BrokerVectorConnectReply))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], uint16(m.StatusCode))
	binary.BigEndian.PutUint32(buf[10:14], m.ClientID)
	copy(buf[14:], text)
	return buf
}

func decodeConnectReply(data []byte) (BrokerConnectReply, error) {
	if len(data) < 14 {
		return BrokerConnectReply{}, fmt.Errorf("rdmnet: decode ConnectReply: %w", errShortMessage)
	}
	if err := validateStatusCode(BrokerStatusCode(binary.BigEndian.Uint16(data[8:10]))); err != nil {
		return BrokerConnectReply{}, fmt.Errorf("rdmnet: decode ConnectReply: %w", err)
	}
	return BrokerConnectReply{
		Sequence:   binary.BigEndian.Uint32(data[4:8]),
		StatusCode: BrokerStatusCode(binary.BigEndian.Uint16(data[8:10])),
		ClientID:   binary.BigEndian.Uint32(data[10:14]),
		Text:       string(data[14:]),
	}, nil
}

// BrokerClientBindRequest requests a role/profile binding for an
// endpoint.
type BrokerClientBindRequest struct {
	Sequence      uint32
	EndpointID    uint16
	RequestedRole Role
	Profiles      []uint16
}

func EncodeClientBindRequest(m BrokerClientBindRequest) []byte {
	if len(m.Profiles) > 255 {
		m.Profiles = m.Profiles[:255]
	}
	buf := make([]byte, 11, 12+len(m.Profiles)*2)
	binary.BigEndian.PutUint32(buf[0:4], uint32(BrokerVectorClientBindRequest))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.EndpointID)
	buf[10] = byte(m.RequestedRole)
	return append(buf, encodeProfileList(m.Profiles)...)
}

func encodeProfileList(profiles []uint16) []byte {
	buf := make([]byte, 1+len(profiles)*2)
	buf[0] = byte(len(profiles))
	for i, p := range profiles {
		binary.BigEndian.PutUint16(buf[1+2*i:3+2*i], p)
	}
	return buf
}

func decodeProfileList(data []byte) ([]uint16, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("rdmnet: decode profile list: %w", errShortMessage)
	}
	count := int(data[0])
	if len(data) < 1+count*2 {
		return nil, 0, fmt.Errorf("rdmnet: decode profile list: %w", errShortMessage)
	}
	profiles := make([]uint16, count)
	for i := 0; i < count; i++ {
		profiles[i] = binary.BigEndian.Uint16(data[1+2*i : 3+2*i])
	}
	return profiles, 1 + count*2, nil
}

func decodeClientBindRequest(data []byte) (BrokerClientBindRequest, error) {
	if len(data) < 12 {
		return BrokerClientBindRequest{}, fmt.Errorf("rdmnet: decode ClientBindRequest: %w", errShortMessage)
	}
	if err := validateRole(Role(data[10])); err != nil {
		return BrokerClientBindRequest{}, fmt.Errorf("rdmnet: decode ClientBindRequest: %w", err)
	}
	profiles, consumed, err := decodeProfileList(data[11:])
	if err != nil {
		return BrokerClientBindRequest{}, err
	}
	if 11+consumed != len(data) {
		return BrokerClientBindRequest{}, fmt.Errorf("rdmnet: decode ClientBindRequest: trailing bytes: %w", errShortMessage)
	}
	return BrokerClientBindRequest{
		Sequence:      binary.BigEndian.Uint32(data[4:8]),
		EndpointID:    binary.BigEndian.Uint16(data[8:10]),
		RequestedRole: Role(data[10]),
		Profiles:      profiles,
	}, nil
}

// BrokerClientBindReply answers ClientBindRequest with the negotiated
// role, profile, and status.
type BrokerClientBindReply struct {
	Sequence          uint32
	StatusCode        BrokerStatusCode
	EndpointID        uint16
	NegotiatedRole    Role
	NegotiatedProfile uint16
	Text              string
}

func EncodeClientBindReply(m BrokerClientBindReply) []byte {
	text := []byte(m.Text)
	buf := make([]byte, 18+len(text))
	binary.BigEndian.PutUint32(buf[0:4], uint32(BrokerVectorClientBindReply))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], uint16(m.StatusCode))
	binary.BigEndian.PutUint16(buf[10:12], m.EndpointID)
	buf[12] = byte(m.NegotiatedRole)
	buf[13] = 0
	binary.BigEndian.PutUint16(buf[14:16], m.NegotiatedProfile)
	binary.BigEndian.PutUint16(buf[16:18], uint16(len(text)))
	copy(buf[18:], text)
	return buf
}

func decodeClientBindReply(data []byte) (BrokerClientBindReply, error) {
	if len(data) < 18 {
		return BrokerClientBindReply{}, fmt.Errorf("rdmnet: decode ClientBindReply: %w", errShortMessage)
	}
	status := BrokerStatusCode(binary.BigEndian.Uint16(data[8:10]))
	if err := validateStatusCode(status); err != nil {
		return BrokerClientBindReply{}, fmt.Errorf("rdmnet: decode ClientBindReply: %w", err)
	}
	// A rejection carries no meaningful negotiation, so the role byte is
	// only held to the enum on Ok replies.
	if status == BrokerStatusOk {
		if err := validateRole(Role(data[12])); err != nil {
			return BrokerClientBindReply{}, fmt.Errorf("rdmnet: decode ClientBindReply: %w", err)
		}
	}
	if data[13] != 0 {
		return BrokerClientBindReply{}, fmt.Errorf("rdmnet: decode ClientBindReply: reserved byte %#x: %w", data[13], errReservedByte)
	}
	textLen := int(binary.BigEndian.Uint16(data[16:18]))
	if len(data) != 18+textLen {
		return BrokerClientBindReply{}, fmt.Errorf("rdmnet: decode ClientBindReply: length: %w", errShortMessage)
	}
	return BrokerClientBindReply{
		Sequence:          binary.BigEndian.Uint32(data[4:8]),
		StatusCode:        BrokerStatusCode(binary.BigEndian.Uint16(data[8:10])),
		EndpointID:        binary.BigEndian.Uint16(data[10:12]),
		NegotiatedRole:    Role(data[12]),
		NegotiatedProfile: binary.BigEndian.Uint16(data[14:16]),
		Text:              string(data[18:]),
	}, nil
}

// BrokerHeartbeat, ClientListRequest, and EndpointListRequest share the
// bare vector+sequence shape, exactly 8 bytes.

type BrokerHeartbeat struct{ Sequence uint32 }

func encodeBareVectorSequence(vector uint32, sequence uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], vector)
	binary.BigEndian.PutUint32(buf[4:8], sequence)
	return buf
}

func decodeBareVectorSequence(data []byte) (uint32, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("rdmnet: decode bare vector+sequence: length %d != 8: %w", len(data), errShortMessage)
	}
	return binary.BigEndian.Uint32(data[4:8]), nil
}

func EncodeHeartbeat(sequence uint32) []byte {
	return encodeBareVectorSequence(uint32(BrokerVectorHeartbeat), sequence)
}

func EncodeClientListRequest(sequence uint32) []byte {
	return encodeBareVectorSequence(uint32(BrokerVectorClientListRequest), sequence)
}

func EncodeEndpointListRequest(sequence uint32) []byte {
	return encodeBareVectorSequence(uint32(BrokerVectorEndpointListRequest), sequence)
}

// BrokerClientListReply enumerates connected client ids.
type BrokerClientListReply struct {
	Sequence  uint32
	Status    uint16
	ClientIDs []uint32
}

func EncodeClientListReply(m BrokerClientListReply) []byte {
	if len(m.ClientIDs) > 255 {
		m.ClientIDs = m.ClientIDs[:255]
	}
	buf := make([]byte, 11+len(m.ClientIDs)*4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(BrokerVectorClientListReply))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.Status)
	buf[10] = byte(len(m.ClientIDs))
	for i, id := range m.ClientIDs {
		binary.BigEndian.PutUint32(buf[11+4*i:15+4*i], id)
	}
	return buf
}

func decodeClientListReply(data []byte) (BrokerClientListReply, error) {
	if len(data) < 11 {
		return BrokerClientListReply{}, fmt.Errorf("rdmnet: decode ClientListReply: %w", errShortMessage)
	}
	count := int(data[10])
	if len(data) != 11+count*4 {
		return BrokerClientListReply{}, fmt.Errorf("rdmnet: decode ClientListReply: length: %w", errShortMessage)
	}
	ids := make([]uint32, count)
	for i := 0; i < count; i++ {
		ids[i] = binary.BigEndian.Uint32(data[11+4*i : 15+4*i])
	}
	return BrokerClientListReply{
		Sequence:  binary.BigEndian.Uint32(data[4:8]),
		Status:    binary.BigEndian.Uint16(data[8:10]),
		ClientIDs: ids,
	}, nil
}

// BrokerEndpointListReply enumerates endpoint ids.
type BrokerEndpointListReply struct {
	Sequence    uint32
	Status      uint16
	EndpointIDs []uint16
}

func EncodeEndpointListReply(m BrokerEndpointListReply) []byte {
	if len(m.EndpointIDs) > 255 {
		m.EndpointIDs = m.EndpointIDs[:255]
	}
	buf := make([]byte, 11+len(m.EndpointIDs)*2)
	binary.BigEndian.PutUint32(buf[0:4], uint32(BrokerVectorEndpointListReply))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.Status)
	buf[10] = byte(len(m.EndpointIDs))
	for i, id := range m.EndpointIDs {
		binary.BigEndian.PutUint16(buf[11+2*i:13+2*i], id)
	}
	return buf
}

func decodeEndpointListReply(data []byte) (BrokerEndpointListReply, error) {
	if len(data) < 11 {
		return BrokerEndpointListReply{}, fmt.Errorf("rdmnet: decode EndpointListReply: %w", errShortMessage)
	}
	count := int(data[10])
	if len(data) != 11+count*2 {
		return BrokerEndpointListReply{}, fmt.Errorf("rdmnet: decode EndpointListReply: length: %w", errShortMessage)
	}
	ids := make([]uint16, count)
	for i := 0; i < count; i++ {
		ids[i] = binary.BigEndian.Uint16(data[11+2*i : 13+2*i])
	}
	return BrokerEndpointListReply{
		Sequence:    binary.BigEndian.Uint32(data[4:8]),
		Status:      binary.BigEndian.Uint16(data[8:10]),
		EndpointIDs: ids,
	}, nil
}

// BrokerDisconnect notifies the peer of a session teardown.
type BrokerDisconnect struct {
	Sequence uint32
	Reason   uint16
	Text     string
}

func EncodeDisconnect(m BrokerDisconnect) []byte {
	text := []byte(m.Text)
	buf := make([]byte, 12+len(text))
	binary.BigEndian.PutUint32(buf[0:4], uint32(BrokerVectorDisconnect))
	binary.BigEndian.PutUint32(buf[4:8], m.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], m.Reason)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(text)))
	copy(buf[12:], text)
	return buf
}

func decodeDisconnect(data []byte) (BrokerDisconnect, error) {
	if len(data) < 12 {
		return BrokerDisconnect{}, fmt.Errorf("rdmnet: decode Disconnect: %w", errShortMessage)
	}
	textLen := int(binary.BigEndian.Uint16(data[10:12]))
	if len(data) != 12+textLen {
		return BrokerDisconnect{}, fmt.Errorf("rdmnet: decode Disconnect: length: %w", errShortMessage)
	}
	return BrokerDisconnect{
		Sequence: binary.BigEndian.Uint32(data[4:8]),
		Reason:   binary.BigEndian.Uint16(data[8:10]),
		Text:     string(data[12:]),
	}, nil
}

// BrokerMessage is the decoded result of DecodeBroker: exactly one of
// its fields is non-nil, matching Vector.
type BrokerMessage struct {
	Vector             BrokerVector
	ConnectRequest      *BrokerConnectRequest
	ConnectReply        *BrokerConnectReply
	ClientBindRequest   *BrokerClientBindRequest
	ClientBindReply     *BrokerClientBindReply
	Heartbeat           *BrokerHeartbeat
	Disconnect          *BrokerDisconnect
	ClientListRequest   *struct{ Sequence uint32 }
	ClientListReply     *BrokerClientListReply
	EndpointListRequest *struct{ Sequence uint32 }
	EndpointListReply   *BrokerEndpointListReply
}

// DecodeBroker dispatches on the inner vector and strictly rejects
// unknown vectors.
func DecodeBroker(data []byte) (*BrokerMessage, error) {
	if len(data) < 8 {
		return nil, newError(DomainBroker, CodeBrokerDecodeError, fmt.Errorf("%w", errShortMessage))
	}
	vector := BrokerVector(binary.BigEndian.Uint32(data[0:4]))

	switch vector {
	case BrokerVectorConnectRequest:
		m, err := decodeConnectRequest(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, ConnectRequest: &m}, nil
	case BrokerVectorConnectReply:
		m, err := decodeConnectReply(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, ConnectReply: &m}, nil
	case BrokerVectorClientBindRequest:
		m, err := decodeClientBindRequest(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, ClientBindRequest: &m}, nil
	case BrokerVectorClientBindReply:
		m, err := decodeClientBindReply(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, ClientBindReply: &m}, nil
	case BrokerVectorHeartbeat:
		seq, err := decodeBareVectorSequence(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, Heartbeat: &BrokerHeartbeat{Sequence: seq}}, nil
	case BrokerVectorDisconnect:
		m, err := decodeDisconnect(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, Disconnect: &m}, nil
	case BrokerVectorClientListRequest:
		seq, err := decodeBareVectorSequence(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, ClientListRequest: &struct{ Sequence uint32 }{seq}}, nil
	case BrokerVectorClientListReply:
		m, err := decodeClientListReply(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, ClientListReply: &m}, nil
	case BrokerVectorEndpointListRequest:
		seq, err := decodeBareVectorSequence(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, EndpointListRequest: &struct{ Sequence uint32 }{seq}}, nil
	case BrokerVectorEndpointListReply:
		m, err := decodeEndpointListReply(data)
		if err != nil {
			return nil, newError(DomainBroker, CodeBrokerDecodeError, err)
		}
		return &BrokerMessage{Vector: vector, EndpointListReply: &m}, nil
	default:
		return nil, newError(DomainBroker, CodeBrokerDecodeError, fmt.Errorf("unknown broker vector %#x", uint32(vector)))
	}
}
