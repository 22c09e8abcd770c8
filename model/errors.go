package model

import (
	"errors"
	"fmt"
)

// ErrConfig marks fatal configuration errors; the process exits with
// code 1 before any job starts.
var ErrConfig = errors.New("configuration error")

// ConnectError is a per-instance connection failure. It isolates to the
// instance: remaining instances in the cycle proceed.
type ConnectError struct {
	Instance string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Instance, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// QueryError is a per-database query failure. It isolates to the
// database: the instance's other databases proceed.
type QueryError struct {
	Target Target
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Target, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// StoreError wraps persistence failures. For collection it is a
// per-target failure; for analysis a per-event failure. Retry happens on
// the next scheduler tick, never within the cycle.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
