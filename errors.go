package imbin

import (
	"errors"
	"fmt"
)

var (
	// ErrShardExhausted is returned when a list has more records than its
	// shard has objects.
	ErrShardExhausted = errors.New("imbin: shard exhausted before list")

	// ErrDecode is wrapped by every DecodeError.
	ErrDecode = errors.New("imbin: decode failed")

	// ErrNotInitialized is returned when the iterator is used before Init.
	ErrNotInitialized = errors.New("imbin: iterator not initialized")

	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("imbin: iterator already initialized")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("imbin: iterator closed")
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
	cause  error
}

func (e *ConfigError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("imbin: config %s: %s: %v", e.Field, e.Reason, e.cause)
	}
	return fmt.Sprintf("imbin: config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.cause }

// CountMismatchError reports a list whose record count differs from the
// object count of its shard.
type CountMismatchError struct {
	List    string
	Shard   string
	Records int64
	Objects int64
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("imbin: %s has %d records but %s has %d objects", e.List, e.Records, e.Shard, e.Objects)
}

// DecodeError reports a sample the decoder could not parse.
//
// errors.Is(err, ErrDecode) holds for every DecodeError.
type DecodeError struct {
	List  string
	Index uint32
	Size  int
	cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("imbin: decode sample %d (%d bytes) from %s: %v", e.Index, e.Size, e.List, e.cause)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.cause} }

// ListError reports a list line without a parsable index and label.
type ListError struct {
	Path  string
	Line  int
	Text  string
	cause error
}

func (e *ListError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("imbin: list %s:%d: %q: %v", e.Path, e.Line, e.Text, e.cause)
	}
	return fmt.Sprintf("imbin: list %s:%d: %q", e.Path, e.Line, e.Text)
}

func (e *ListError) Unwrap() error { return e.cause }
