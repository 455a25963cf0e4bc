package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the error taxonomy a Store can produce: IO,
// Deserialization, or KeyNotFound.
type Kind int

const (
	// KindIO wraps an underlying filesystem error (open, read, write,
	// seek, remove, stat).
	KindIO Kind = iota
	// KindDeserialization marks a log record that failed to decode.
	KindDeserialization
	// KindKeyNotFound marks a Remove on a key absent from the index.
	KindKeyNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindDeserialization:
		return "deserialization"
	case KindKeyNotFound:
		return "key not found"
	default:
		return "unknown"
	}
}

// ErrKeyNotFound is the sentinel a StoreError of KindKeyNotFound wraps,
// so callers can match with errors.Is.
var ErrKeyNotFound = errors.New("key not found")

// StoreError is the typed error every fallible engine operation returns.
// Op names the failing operation, Path is the file or key involved (may
// be empty), and Err is the underlying cause.
type StoreError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func ioErr(op, path string, err error) error {
	return &StoreError{Kind: KindIO, Op: op, Path: path, Err: errors.WithStack(err)}
}

func decodeErr(op, path string, err error) error {
	return &StoreError{Kind: KindDeserialization, Op: op, Path: path, Err: errors.WithStack(err)}
}

func keyNotFoundErr(op, key string) error {
	return &StoreError{Kind: KindKeyNotFound, Op: op, Path: key, Err: ErrKeyNotFound}
}

// IsKeyNotFound reports whether err is (or wraps) a KindKeyNotFound
// StoreError.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsDeserialization reports whether err is a KindDeserialization
// StoreError, the failure mode that is fatal to Open mid-recovery.
func IsDeserialization(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind == KindDeserialization
	}
	return false
}

// errCorruptIndex reports that the record found at pos doesn't name the
// key the index said it would, evidence of index/log disagreement
// rather than an ordinary decode failure.
func errCorruptIndex(key string, pos CommandPos) error {
	return fmt.Errorf("indexed record at generation %d offset %d is not a Set for key %q", pos.Gen, pos.Offset, key)
}
