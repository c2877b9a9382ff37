// Package noiseerr defines the error kinds reported by the Noise protocol
// packages. Errors returned by this module wrap one of these sentinels, so
// callers classify failures with errors.Is.
package noiseerr

import "errors"

var (
	// ErrInvalidParam reports a nil or misused argument.
	ErrInvalidParam = errors.New("noise: invalid parameter")

	// ErrInvalidLength reports a buffer that is too small or an input whose
	// length is outside the permitted range.
	ErrInvalidLength = errors.New("noise: invalid length")

	// ErrUnknownName reports text that does not match the naming grammar.
	ErrUnknownName = errors.New("noise: unknown name")

	// ErrUnknownID reports an identifier that is not valid for its field,
	// or a reserved field that is set.
	ErrUnknownID = errors.New("noise: unknown identifier")

	// ErrMACFailure reports an AEAD tag mismatch on decryption.
	ErrMACFailure = errors.New("noise: MAC failure")

	// ErrNoKey reports an operation that requires a key not yet established.
	ErrNoKey = errors.New("noise: no key")

	// ErrInvalidState reports an operation attempted in the wrong state or turn.
	ErrInvalidState = errors.New("noise: invalid state")

	// ErrNonceOverflow reports that the nonce space of a cipher is exhausted.
	ErrNonceOverflow = errors.New("noise: nonce overflow")

	// ErrLocalKeyRequired reports a pattern that needs a local static key
	// which was not supplied.
	ErrLocalKeyRequired = errors.New("noise: local static key required")

	// ErrRemoteKeyRequired reports a pattern that needs the remote static
	// public key up front which was not supplied.
	ErrRemoteKeyRequired = errors.New("noise: remote static key required")

	// ErrPSKRequired reports a psk pattern without a pre-shared key.
	ErrPSKRequired = errors.New("noise: pre-shared key required")

	// ErrNotApplicable reports a modifier that cannot be applied to the
	// pattern it is attached to.
	ErrNotApplicable = errors.New("noise: modifier not applicable")

	// ErrInvalidPublicKey reports a public key rejected by the DH backend.
	ErrInvalidPublicKey = errors.New("noise: invalid public key")
)

var kinds = []struct {
	err  error
	code string
}{
	{ErrInvalidParam, "INVALID_PARAM"},
	{ErrInvalidLength, "INVALID_LENGTH"},
	{ErrUnknownName, "UNKNOWN_NAME"},
	{ErrUnknownID, "UNKNOWN_ID"},
	{ErrMACFailure, "MAC_FAILURE"},
	{ErrNoKey, "NO_KEY"},
	{ErrInvalidState, "INVALID_STATE"},
	{ErrNonceOverflow, "NONCE_OVERFLOW"},
	{ErrLocalKeyRequired, "LOCAL_KEY_REQUIRED"},
	{ErrRemoteKeyRequired, "REMOTE_KEY_REQUIRED"},
	{ErrPSKRequired, "PSK_REQUIRED"},
	{ErrNotApplicable, "NOT_APPLICABLE"},
	{ErrInvalidPublicKey, "INVALID_PUBLIC_KEY"},
}

// Code returns the short code of the error kind wrapped by err, "NONE" for a
// nil error and "UNKNOWN" when err wraps none of the sentinels.
func Code(err error) string {
	if err == nil {
		return "NONE"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "UNKNOWN"
}
