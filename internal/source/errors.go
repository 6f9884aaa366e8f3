package source

import "codeberg.org/mutker/rigbeat/internal/errors"

const (
	ErrTransportUnavailable = errors.ErrTransportUnavailable
	ErrMalformedResponse    = errors.ErrMalformedResponse
	ErrTimeout              = errors.ErrTimeout
)

// unavailable wraps a connection-level failure.
func unavailable(transport string, err error) error {
	return errors.New().Wrap(ErrTransportUnavailable, err).
		WithMessage(transport + ": transport unavailable")
}

// malformed reports a reachable transport whose payload does not match the
// expected schema.
func malformed(transport, reason string) error {
	return errors.New().WithData(ErrMalformedResponse, transport+": "+reason)
}
