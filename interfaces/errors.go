package interfaces

import "errors"

var (
	// ErrMalformedCipherObject is returned when a structured value carries the
	// "encrypted" marker but its content is empty or not text.
	ErrMalformedCipherObject = errors.New("malformed cipher object")

	// ErrMalformedInlineCipher is returned when a data:aws/kms; value does not
	// carry exactly one or two non-empty comma separated segments.
	ErrMalformedInlineCipher = errors.New("malformed inline cipher")

	// ErrOracleFailure is returned when the decryption oracle rejects a
	// well-formed reference.
	ErrOracleFailure = errors.New("decryption oracle failure")

	// ErrUnknownUnit is returned when a projection targets a unit the
	// descriptor does not declare.
	ErrUnknownUnit = errors.New("unknown unit")
)
