package relay

import "errors"

// Sentinel errors.
var (
	// ErrInvalidFrame is returned by Decode for malformed frames.
	ErrInvalidFrame = errors.New("relay: invalid frame")

	// ErrUnknownType is returned by Decode for frames with an
	// unrecognized type discriminator.
	ErrUnknownType = errors.New("relay: unknown message type")

	// ErrCodeNotFound is returned by Claim for codes that do not exist
	// or have expired. The two cases are deliberately indistinguishable.
	ErrCodeNotFound = errors.New("relay: invalid or expired pairing code")
)

// ErrorCode identifies a protocol error carried in a relay:error frame.
// All of these are non-fatal: the connection stays open.
type ErrorCode string

const (
	// ErrCodeInvalidFrame: the payload was not well-formed JSON.
	ErrCodeInvalidFrame ErrorCode = "invalid-frame"

	// ErrCodeUnknownType: the "type" field was not recognized.
	ErrCodeUnknownType ErrorCode = "unknown-type"

	// ErrCodeNotRegistered: an agent acted before agent:register.
	ErrCodeNotRegistered ErrorCode = "not-registered"

	// ErrCodeNotPaired: a client acted before a successful client:pair.
	ErrCodeNotPaired ErrorCode = "not-paired"

	// ErrCodeNoActiveSession: a registered agent messaged with no
	// session bound (e.g. the client already disconnected).
	ErrCodeNoActiveSession ErrorCode = "no-active-session"

	// ErrCodeInvalidOrExpired: pairing code redemption failed.
	// Conflates "never existed" and "expired" so neither leaks.
	ErrCodeInvalidOrExpired ErrorCode = "invalid-or-expired-code"

	// ErrCodeSessionExpired: a client referenced a session the table no
	// longer holds.
	ErrCodeSessionExpired ErrorCode = "session-expired"
)
