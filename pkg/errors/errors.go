// Copyright 2021 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors holds the standardized fatal error definitions for the boot
// builders.
//
// Every error defined here aborts bring-up: there is nothing at this stage
// that could recover from a partially built address space. Conditions that
// callers are expected to handle (an unmapped lookup, for example) are plain
// results and never an *Error.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal error.
type Kind int

const (
	// Exhausted means the frame allocator could not supply a frame.
	Exhausted Kind = iota + 1

	// Alignment means an explicit virtual address does not share its page
	// offset with the physical address being mapped.
	Alignment

	// Range means a region crosses or lies outside the window owned by its
	// root, or its end wraps.
	Range
)

// String implements fmt.Stringer.String.
func (k Kind) String() string {
	switch k {
	case Exhausted:
		return "allocator exhaustion"
	case Alignment:
		return "alignment violation"
	case Range:
		return "range violation"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a fatal error with a descriptive message.
type Error struct {
	kind    Kind
	message string
}

// New creates a new *Error.
func New(kind Kind, message string) *Error {
	return &Error{
		kind:    kind,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Kind returns the classification of e.
func (e *Error) Kind() Kind { return e.kind }

// detailed attaches call-site detail to a sentinel *Error while keeping it
// matchable with errors.Is and errors.As.
type detailed struct {
	base   *Error
	detail string
}

// Error implements error.Error.
func (d *detailed) Error() string { return d.base.message + ": " + d.detail }

// Unwrap returns the sentinel.
func (d *detailed) Unwrap() error { return d.base }

// Detailf returns base annotated with a formatted detail message.
func Detailf(base *Error, format string, v ...any) error {
	return &detailed{base: base, detail: fmt.Sprintf(format, v...)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}

// IsFatal returns true if err carries an *Error.
func IsFatal(err error) bool {
	_, ok := KindOf(err)
	return ok
}
