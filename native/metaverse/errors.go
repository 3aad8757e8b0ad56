package metaverse

import "errors"

var (
	// ErrUnauthorized is returned when a permission or capability check
	// fails. No state is changed.
	ErrUnauthorized = errors.New("metaverse: unauthorized")
	// ErrInvalidRange is returned for identifiers outside the partition an
	// operation expects.
	ErrInvalidRange = errors.New("metaverse: identifier out of range")
	// ErrInvalidOperation is returned for disallowed actions such as
	// burning a brand.
	ErrInvalidOperation = errors.New("metaverse: invalid operation")
	// ErrAlreadyRegistered is returned for duplicate plug-in or type
	// registrations. The condition is permanent.
	ErrAlreadyRegistered = errors.New("metaverse: already registered")
	// ErrExhausted is returned when an identifier partition has no free
	// slots left. The partition is fixed-size, so there is no recovery.
	ErrExhausted = errors.New("metaverse: identifier space exhausted")

	// Delegation failures. A caller may retry with a fresh delegation,
	// never with the same hash.
	ErrSignatureMismatch = errors.New("metaverse: delegation signer mismatch")
	ErrExpired           = errors.New("metaverse: delegation expired")
	ErrNotYetValid       = errors.New("metaverse: delegation not yet valid")
	ErrReplayed          = errors.New("metaverse: delegation hash already used")
)
