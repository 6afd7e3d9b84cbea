package sccp

import "errors"

var (
	// ErrProtocolViolation marks a well-formed message that is not valid in
	// the session's current state. The message is dropped, the session lives.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSessionConflict marks a session superseded by a newer registration
	// of the same device.
	ErrSessionConflict = errors.New("session conflict")

	// ErrAddressChanged marks a non-NAT device talking from an address other
	// than the one it registered from.
	ErrAddressChanged = errors.New("device address changed")

	// ErrKeepaliveExpired marks a session that went silent.
	ErrKeepaliveExpired = errors.New("keepalive expired")

	// ErrRegistrationRejected marks a registration for an unknown device
	// while anonymous registration is off.
	ErrRegistrationRejected = errors.New("registration rejected")

	ErrLineNotFound       = errors.New("line not found")
	ErrNoDeviceRegistered = errors.New("no device registered on line")
	ErrAllocationFailed   = errors.New("channel allocation failed")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrDeviceNotFound     = errors.New("device not found")

	// ErrResourceExhausted marks a startup failure to acquire sockets.
	ErrResourceExhausted = errors.New("resource exhausted")
)
