// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/worker/connection layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication (wrong credentials).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated user referenced a resource they do not belong to.
	ErrForbidden = errors.New("forbidden")

	// ErrBlacklisted indicates the source address is temporarily rejected.
	ErrBlacklisted = errors.New("blacklisted")

	// ErrStoreUnavailable indicates the store stayed unreachable past the retry ceiling.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrExhausted indicates the (username, tag) space for a username is full.
	ErrExhausted = errors.New("discriminator space exhausted")

	// ErrWeakPassword indicates a password that fails the strength rule.
	ErrWeakPassword = errors.New("weak password")

	// ErrNoPrivateKey indicates a decrypt attempt with a public-only identity.
	ErrNoPrivateKey = errors.New("identity has no private key")

	// ErrIntegrity indicates an authentication tag mismatch on decrypt.
	ErrIntegrity = errors.New("message authentication failed")

	// ErrFrameTooLarge indicates a length prefix above the configured limit.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrProtocol indicates an unexpected item type or a malformed message.
	ErrProtocol = errors.New("protocol violation")

	// ErrInvalidArgument indicates a request with missing or malformed fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupported indicates a request kind the server recognises but does not serve.
	ErrUnsupported = errors.New("not supported")
)
