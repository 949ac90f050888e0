// Package rdmnet implements an E1.33 RDMnet client: a framed TCP/TLS
// transport, broker session negotiation, RPT RDM transactions, EPT
// passthrough, LLRP discovery, an endpoint capability cache, and
// reconnect/heartbeat machinery.
package rdmnet

import (
	"errors"
	"fmt"
)

// errShortMessage is wrapped by every per-message decode helper in
// broker.go/rpt.go/ept.go/llrp.go to report a truncated or
// length-mismatched wire message.
var errShortMessage = errors.New("message too short or length mismatch")

// errReservedByte reports a reserved wire byte that was not zero.
var errReservedByte = errors.New("nonzero reserved byte")

// errInvalidEnum reports a role or status code outside its defined
// value set.
var errInvalidEnum = errors.New("invalid enum value")

// Domain classifies where an RdmnetError originated.
type Domain string

const (
	DomainBroker    Domain = "broker"
	DomainRPT       Domain = "rpt"
	DomainEPT       Domain = "ept"
	DomainLLRP      Domain = "llrp"
	DomainTransport Domain = "transport"
	DomainTimeout   Domain = "timeout"
)

// Code is a stable error identifier independent of its human-readable
// message.
type Code string

const (
	CodeBrokerDecodeError  Code = "BROKER_DECODE_ERROR"
	CodeRPTDecodeError     Code = "RPT_DECODE_ERROR"
	CodeEPTDecodeError     Code = "EPT_DECODE_ERROR"
	CodeLLRPDecodeError    Code = "LLRP_DECODE_ERROR"
	CodeStreamFramingError Code = "STREAM_FRAMING_ERROR"

	CodeBrokerRejected         Code = "BROKER_REJECTED"
	CodeBrokerInvalidScope     Code = "BROKER_INVALID_SCOPE"
	CodeBrokerUnauthorized     Code = "BROKER_UNAUTHORIZED"
	CodeBrokerAlreadyConnected Code = "BROKER_ALREADY_CONNECTED"
	CodeBrokerInvalidRequest   Code = "BROKER_INVALID_REQUEST"

	CodeNegotiationRoleMismatch    Code = "NEGOTIATION_ROLE_MISMATCH"
	CodeNegotiationProfileMismatch Code = "NEGOTIATION_PROFILE_MISMATCH"

	CodeResponseTimeout Code = "RESPONSE_TIMEOUT"
	CodeProtocolError   Code = "PROTOCOL_ERROR"
)

// RdmnetError is the error type for broker status rejections, response
// timeouts and decode-error events. Dial, write and context failures are
// returned as ordinary wrapped errors.
type RdmnetError struct {
	Domain     Domain
	Code       Code
	StatusCode int // broker/RPT status code, when applicable; 0 otherwise
	Err        error
}

func (e *RdmnetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rdmnet: %s/%s: %v", e.Domain, e.Code, e.Err)
	}
	return fmt.Sprintf("rdmnet: %s/%s", e.Domain, e.Code)
}

func (e *RdmnetError) Unwrap() error {
	return e.Err
}

func newError(domain Domain, code Code, err error) *RdmnetError {
	return &RdmnetError{Domain: domain, Code: code, Err: err}
}

// BrokerStatusCode values, per the broker ConnectReply/ClientBindReply
// status field.
type BrokerStatusCode uint16

const (
	BrokerStatusOk                BrokerStatusCode = 0
	BrokerStatusRejected          BrokerStatusCode = 1
	BrokerStatusInvalidScope      BrokerStatusCode = 2
	BrokerStatusUnauthorized      BrokerStatusCode = 3
	BrokerStatusAlreadyConnected  BrokerStatusCode = 4
	BrokerStatusInvalidRequest    BrokerStatusCode = 5
)

func validateRole(r Role) error {
	if r != RoleController && r != RoleDevice {
		return fmt.Errorf("role %d: %w", r, errInvalidEnum)
	}
	return nil
}

func validateStatusCode(s BrokerStatusCode) error {
	if s > BrokerStatusInvalidRequest {
		return fmt.Errorf("status code %d: %w", s, errInvalidEnum)
	}
	return nil
}

// mapBrokerStatus converts a non-Ok broker status into its matching
// RdmnetError code, preserving the numeric status.
func mapBrokerStatus(status BrokerStatusCode) *RdmnetError {
	code := CodeProtocolError
	switch status {
	case BrokerStatusRejected:
		code = CodeBrokerRejected
	case BrokerStatusInvalidScope:
		code = CodeBrokerInvalidScope
	case BrokerStatusUnauthorized:
		code = CodeBrokerUnauthorized
	case BrokerStatusAlreadyConnected:
		code = CodeBrokerAlreadyConnected
	case BrokerStatusInvalidRequest:
		code = CodeBrokerInvalidRequest
	}
	return &RdmnetError{Domain: DomainBroker, Code: code, StatusCode: int(status)}
}
