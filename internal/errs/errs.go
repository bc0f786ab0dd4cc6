// Package errs defines the error kinds shared by the transcription pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrConfiguration covers invalid settings and missing external tools.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound is returned when the input directory does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDecode covers corrupt or unreadable audio.
	ErrDecode = errors.New("decode error")
	// ErrEngine covers a failed or timed out transcription call.
	ErrEngine = errors.New("engine error")
	// ErrIO covers transcript write failures.
	ErrIO = errors.New("io error")
)

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New builds an error of the given kind from a format string.
func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// Config is shorthand for a configuration error.
func Config(format string, args ...any) error {
	return New(ErrConfiguration, format, args...)
}

// Kind reports the taxonomy name for err, or "internal" when it has none.
func Kind(err error) string {
	for _, k := range []error{ErrConfiguration, ErrNotFound, ErrDecode, ErrEngine, ErrIO} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal"
}

// Fatal reports whether err must stop a run before any file is processed.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrNotFound)
}
