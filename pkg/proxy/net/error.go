// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"fmt"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/shardproxy/lib/util/errors"
)

// ErrBadLogicDB is the code reported when the logical schema can't be resolved.
const ErrBadLogicDB = gomysql.ER_BAD_DB_ERROR

// Client state errors. The connection stays usable after them.
var (
	ErrNoDatabaseSelected     = errors.New("no database selected")
	ErrUnknownDatabase        = errors.New("unknown database")
	ErrTransactionInterrupted = errors.New("transaction interrupted")
	ErrAlreadyLocked          = errors.New("tables already locked")
	ErrAlreadyInTransaction   = errors.New("already in transaction")
	ErrUnknownCommand         = errors.New("unknown command")
	ErrParse                  = errors.New("failed to route the statement")
	ErrConnectionClosed       = errors.New("connection is closed")
	ErrCloseConn              = errors.New("failed to close the connection")
)

func NoDatabaseSelected() error {
	return errors.Wrap(ErrNoDatabaseSelected, gomysql.NewError(ErrBadLogicDB, "No Database selected"))
}

func UnknownDatabase(schema string) error {
	return errors.Wrap(ErrUnknownDatabase, gomysql.NewError(ErrBadLogicDB, fmt.Sprintf("Unknown Database '%s'", schema)))
}

func TransactionInterrupted(msg string) error {
	return errors.Wrap(ErrTransactionInterrupted, gomysql.NewError(gomysql.ER_YES, "Transaction error, need to rollback."+msg))
}

func AlreadyLocked() error {
	return errors.Wrap(ErrAlreadyLocked, gomysql.NewError(gomysql.ER_YES, "can't lock multi-table"))
}

func AlreadyInTransaction() error {
	return errors.Wrap(ErrAlreadyInTransaction, gomysql.NewError(gomysql.ER_YES, "can't lock table in transaction!"))
}

func UnknownCommand() error {
	return errors.Wrap(ErrUnknownCommand, gomysql.NewError(gomysql.ER_UNKNOWN_COM_ERROR, "Unknown command"))
}

// RouteFailed converts any router failure to a parse error. The message is the cause's message,
// or its type name if it has none.
func RouteFailed(cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
		if msg == "" {
			msg = fmt.Sprintf("%T", cause)
		}
	}
	return errors.Wrap(ErrParse, gomysql.NewError(gomysql.ER_PARSE_ERROR, msg))
}

func ConnectionClosed() error {
	return errors.WithStack(ErrConnectionClosed)
}

// ToMySQLError returns the error to report to the client.
func ToMySQLError(err error) *gomysql.MyError {
	if err == nil {
		return nil
	}
	var myErr *gomysql.MyError
	if errors.As(err, &myErr) {
		return myErr
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return gomysql.NewError(gomysql.ER_UNKNOWN_ERROR, ue.UserMsg())
	}
	return gomysql.NewError(gomysql.ER_UNKNOWN_ERROR, err.Error())
}

// UserError is returned to the client.
// err is used to log and userMsg is used to report to the user.
type UserError struct {
	err     error
	userMsg string
}

func WrapUserError(err error, userMsg string) *UserError {
	if err == nil {
		return nil
	}
	if ue, ok := err.(*UserError); ok {
		return ue
	}
	return &UserError{
		err:     err,
		userMsg: userMsg,
	}
}

func (ue *UserError) UserMsg() string {
	return ue.userMsg
}

func (ue *UserError) Unwrap() error {
	return ue.err
}

func (ue *UserError) Error() string {
	return ue.err.Error()
}
