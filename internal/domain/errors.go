package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNoQuote      = errors.New("no quote data")
	ErrInvalidInput = errors.New("invalid input")
)

// ConnectionError wraps a transient transport failure on one exchange feed.
// The feed retries these indefinitely; they never affect other venues.
type ConnectionError struct {
	Exchange string
	Op       string // dial, subscribe, read, write
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("feed %s: %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError marks one malformed or unrecognized message. The message is
// dropped and counted; the connection stays up.
type DecodeError struct {
	Exchange string
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Exchange, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Exchange, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProtocolViolationError reports decode errors above the allowed rate,
// which points at an upstream format change rather than line noise. The
// connection is torn down and redialed.
type ProtocolViolationError struct {
	Exchange string
	Count    int
	Window   time.Duration
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("feed %s: %d decode errors within %s", e.Exchange, e.Count, e.Window)
}

// ConfigError reports an invalid per-exchange configuration entry. It halts
// only the venue it names; other venues start normally.
type ConfigError struct {
	Exchange string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("exchange config %s: %s", e.Exchange, e.Reason)
}
