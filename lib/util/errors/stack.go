// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
)

const defaultStackDepth = 48

var (
	_ error         = &Error{}
	_ fmt.Formatter = &Error{}
)

// Error attaches the call stack to an error. %v and %+v print the stack, %s does not.
type Error struct {
	err   error
	trace stacktrace
}

// WithStack records the stack of the caller. Wrapping nil returns nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	e := &Error{err: err, trace: make(stacktrace, defaultStackDepth)}
	n := runtime.Callers(2, e.trace)
	e.trace = e.trace[:n]
	return e
}

func (e *Error) Format(st fmt.State, verb rune) {
	switch verb {
	case 'v':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+v", e.err)
		} else {
			fmt.Fprintf(st, "%v", e.err)
		}
		e.trace.write(st, st.Flag('+'))
	case 's':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+s", e.err)
			e.trace.write(st, true)
		} else {
			fmt.Fprintf(st, "%s", e.err)
		}
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *Error) As(target any) bool {
	return errors.As(e.err, target)
}

// Unwrap skips the stack layer.
func (e *Error) Unwrap() error {
	return errors.Unwrap(e.err)
}

type stacktrace []uintptr

func (st stacktrace) write(w io.Writer, withLine bool) {
	frames := runtime.CallersFrames(st)
	for {
		fr, more := frames.Next()
		fn := fr.Function
		if fn == "" {
			fn = "unknown"
		}
		_, _ = io.WriteString(w, "\n"+fn+"\n\t"+fr.File)
		if withLine {
			_, _ = io.WriteString(w, ":"+strconv.Itoa(fr.Line))
		}
		if !more {
			return
		}
	}
}
