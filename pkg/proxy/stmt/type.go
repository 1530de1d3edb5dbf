// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package stmt

// Type is the coarse classification of a statement that routing and execution depend on.
type Type int

const (
	Other Type = iota
	Select
	Insert
	Update
	Delete
	Replace
	DDL
	Lock
	Unlock
	Show
	Use
	Set
	Explain
	Describe
	Help
	Begin
	Commit
	Rollback
	Kill
	Load
	Call
)

var typeNames = map[Type]string{
	Other:    "other",
	Select:   "select",
	Insert:   "insert",
	Update:   "update",
	Delete:   "delete",
	Replace:  "replace",
	DDL:      "ddl",
	Lock:     "lock",
	Unlock:   "unlock",
	Show:     "show",
	Use:      "use",
	Set:      "set",
	Explain:  "explain",
	Describe: "describe",
	Help:     "help",
	Begin:    "begin",
	Commit:   "commit",
	Rollback: "rollback",
	Kill:     "kill",
	Load:     "load",
	Call:     "call",
}

// AllTypes is used to initialize metric labels.
var AllTypes = []Type{Other, Select, Insert, Update, Delete, Replace, DDL, Lock, Unlock, Show, Use, Set,
	Explain, Describe, Help, Begin, Commit, Rollback, Kill, Load, Call}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return typeNames[Other]
}

// IsDML returns true for the statements that read or write table data.
func (t Type) IsDML() bool {
	switch t {
	case Select, Insert, Update, Delete, Replace:
		return true
	}
	return false
}

// CheckSchema returns true for the statements whose tables may be qualified by another schema.
func (t Type) CheckSchema() bool {
	switch t {
	case Select, Insert, Update, Delete, DDL:
		return true
	}
	return false
}
