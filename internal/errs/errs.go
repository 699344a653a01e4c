// Package errs defines the error kinds the sync engine's components agree
// on (spec 7), so a session or the CLI can branch on what went wrong
// without string-matching.
package errs

import "fmt"

type Kind string

const (
	IOError          Kind = "ioError"
	HashMismatch     Kind = "hashMismatch"
	TransportTimeout Kind = "transportTimeout"
	PeerUnknown      Kind = "peerUnknown"
	ProtocolError    Kind = "protocolError"
	StoreCorruption  Kind = "storeCorruption"
)

// Error wraps an underlying cause with the Kind that determines how the
// caller should react (retry, drop the connection, quarantine the store,
// ...).
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func New(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind carried by err if it (or something it wraps) is
// an *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
