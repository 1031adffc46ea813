// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrManagerNotStarted is returned when an operation is invoked on a manager that is not running.
	ErrManagerNotStarted = errors.New("manager is not started")

	// ErrGroupNotFound is returned when the given group does not exist in the registry.
	ErrGroupNotFound = errors.New("group not found")

	// ErrInvalidGroupName is returned when a group name is empty or contains reserved characters.
	// A valid name must consist of word characters with optional non-leading '-'.
	ErrInvalidGroupName = errors.New("invalid group name, must contain only word characters (i.e. [a-zA-Z0-9] plus non-leading '-' or '_')")

	// ErrStoreClosed is returned when a store is used after it has been closed.
	ErrStoreClosed = errors.New("store is closed")

	// ErrKeyNotFound is returned by a shared map when a key has no value.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTransitionInProgress is returned when a membership transition for the same group
	// could not be entered before the caller gave up.
	ErrTransitionInProgress = errors.New("membership transition in progress")

	// ErrMalformedEntry is returned when a shared value cannot be decoded into its expected shape.
	ErrMalformedEntry = errors.New("malformed shared entry")

	// ErrChannelClosed is returned when sending through a released producer.
	ErrChannelClosed = errors.New("channel is closed")
)

// NewErrGroupNotFound formats ErrGroupNotFound with the group name
func NewErrGroupNotFound(name string) error {
	return fmt.Errorf("group=(%s) %w", name, ErrGroupNotFound)
}

// NewErrMalformedEntry formats ErrMalformedEntry with the key and the decoding failure
func NewErrMalformedEntry(key string, err error) error {
	return errors.Join(fmt.Errorf("key=(%s) %w", key, ErrMalformedEntry), err)
}

// NewErrTransitionInProgress formats ErrTransitionInProgress with the group name
func NewErrTransitionInProgress(name string, err error) error {
	return errors.Join(fmt.Errorf("group=(%s) %w", name, ErrTransitionInProgress), err)
}

// StoreError wraps a failure reported by a shared or local store
type StoreError struct {
	op  string
	err error
}

// enforce compilation error
var _ error = (*StoreError)(nil)

// NewStoreError creates an instance of StoreError for the given operation
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{op: op, err: err}
}

// Op returns the store operation that failed
func (e *StoreError) Op() string {
	return e.op
}

// Error implements the standard error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.op, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}
