// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
)

var _ error = &WError{}

// WError binds a cause to a class. Is matches the class and Unwrap returns the cause,
// so both errors.Is(err, class) and errors.As(err, &cause) work.
type WError struct {
	cerr error
	uerr error
}

// Wrap returns nil if cerr is nil.
func Wrap(cerr error, uerr error) error {
	if cerr == nil {
		return nil
	}
	return &WError{cerr: cerr, uerr: uerr}
}

// Wrapf is like Wrap, with the cause built by fmt.Errorf.
func Wrapf(cerr error, msg string, args ...any) error {
	if cerr == nil {
		return nil
	}
	return &WError{cerr: cerr, uerr: fmt.Errorf(msg, args...)}
}

func (e *WError) Format(st fmt.State, verb rune) {
	switch {
	case verb == 'v' && st.Flag('+'):
		fmt.Fprintf(st, "%+v: %+v", e.cerr, e.uerr)
	case verb == 'v':
		fmt.Fprintf(st, "%v: %v", e.cerr, e.uerr)
	case verb == 's' && st.Flag('+'):
		fmt.Fprintf(st, "%+s: %+s", e.cerr, e.uerr)
	case verb == 's':
		fmt.Fprintf(st, "%s: %s", e.cerr, e.uerr)
	}
}

func (e *WError) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *WError) Is(target error) bool {
	return errors.Is(e.cerr, target)
}

func (e *WError) Unwrap() error {
	return e.uerr
}
