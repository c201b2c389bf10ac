package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed is returned by a Channel once it has been closed.
	ErrChannelClosed = errors.New("relay: channel closed")
	// ErrBackpressure is returned when a channel's outbound queue is full.
	ErrBackpressure = errors.New("relay: channel backpressure")
	// ErrSessionNotLive indicates a session is being torn down and must not be written to.
	ErrSessionNotLive = errors.New("relay: session not live")
	// ErrNilChannel is returned when admission is attempted without a transport.
	ErrNilChannel = errors.New("relay: channel is required")
)

// Protocol error kinds reported to the originating session.
const (
	ProtocolMalformed    = "malformed_envelope"
	ProtocolInvalid      = "invalid_envelope"
	ProtocolMissingField = "missing_field"
	ProtocolUnsupported  = "unsupported_type"
	ProtocolForbidden    = "forbidden"
	ProtocolMismatch     = "identity_mismatch"
)

// Coder is implemented by relay errors that carry a stable machine-readable code.
type Coder interface {
	Code() string
}

// AdmissionError rejects a connection before a session exists.
type AdmissionError struct {
	Field  string
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("relay: admission rejected: %s %s", e.Field, e.Reason)
}

// Code implements Coder.
func (e *AdmissionError) Code() string { return "admission_rejected" }

// ProtocolError reports an envelope that is malformed or not permitted for the sender.
type ProtocolError struct {
	Kind   string
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return "relay: protocol error: " + e.Kind
	}
	return fmt.Sprintf("relay: protocol error: %s: %s", e.Kind, e.Detail)
}

// Code implements Coder.
func (e *ProtocolError) Code() string { return e.Kind }

// PersistenceError wraps a failed durable write. The envelope it guarded is never broadcast.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("relay: persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code implements Coder.
func (e *PersistenceError) Code() string { return "persistence_failed" }

// DeliveryError describes a single recipient that could not be written to.
type DeliveryError struct {
	SessionID string
	Key       Key
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("relay: deliver to %s (%s): %v", e.Key, e.SessionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Code implements Coder.
func (e *DeliveryError) Code() string { return "delivery_failed" }

func errorCode(err error) string {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return "internal_error"
}
