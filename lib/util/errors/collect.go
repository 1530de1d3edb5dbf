// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"strings"
)

var _ error = &MError{}

// MError is a class error with several underlying errors, e.g. the results of
// independent cleanup steps.
type MError struct {
	cerr error
	uerr []error
}

// Collect drops nil errors and returns nil if nothing is left.
// Unwrap is a noop. Is matches the class and every underlying error.
func Collect(cerr error, uerr ...error) error {
	errs := make([]error, 0, len(uerr))
	for _, e := range uerr {
		if e != nil {
			errs = append(errs, e)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &MError{cerr: cerr, uerr: errs}
}

func (e *MError) Format(st fmt.State, verb rune) {
	format := "%" + string(verb)
	if st.Flag('+') {
		format = "%+" + string(verb)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, format+":\n", e.cerr)
	for _, ue := range e.uerr {
		fmt.Fprintf(&sb, "\t"+format, ue)
	}
	_, _ = st.Write([]byte(sb.String()))
}

func (e *MError) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *MError) Is(target error) bool {
	if errors.Is(e.cerr, target) {
		return true
	}
	for _, ue := range e.uerr {
		if errors.Is(ue, target) {
			return true
		}
	}
	return false
}

func (e *MError) Cause() []error {
	return e.uerr
}
