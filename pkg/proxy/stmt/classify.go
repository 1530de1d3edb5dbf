// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package stmt

import (
	"bytes"

	"github.com/siddontang/go/hack"
)

var keywordTypes = map[string]Type{
	"select":   Select,
	"with":     Select,
	"insert":   Insert,
	"update":   Update,
	"delete":   Delete,
	"replace":  Replace,
	"create":   DDL,
	"alter":    DDL,
	"drop":     DDL,
	"truncate": DDL,
	"rename":   DDL,
	"lock":     Lock,
	"unlock":   Unlock,
	"show":     Show,
	"use":      Use,
	"set":      Set,
	"explain":  Explain,
	"describe": Describe,
	"desc":     Describe,
	"help":     Help,
	"begin":    Begin,
	"commit":   Commit,
	"rollback": Rollback,
	"kill":     Kill,
	"load":     Load,
	"call":     Call,
}

// Classify returns the type of the first statement in sql. Leading comments, blanks and
// semicolons are skipped. It's not a parser and it never fails: unknown statements are Other.
func Classify(sql string) Type {
	query := hack.Slice(sql)
	pos := skipLeadingTokens(query, 0, true)
	if pos >= len(query) {
		return Other
	}
	first, pos := readKeyword(query, pos)
	if first == "" {
		// e.g. `(select 1) union (select 2)`
		if query[pos] == '(' {
			return Classify(hack.String(query[pos+1:]))
		}
		return Other
	}
	if first == "start" {
		second, _ := readKeyword(query, skipLeadingTokens(query, pos, false))
		if second == "transaction" {
			return Begin
		}
		return Other
	}
	if tp, ok := keywordTypes[first]; ok {
		return tp
	}
	return Other
}

func skipLeadingTokens(query []byte, pos int, skipSemicolon bool) int {
	for pos < len(query) {
		switch query[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		case ';':
			if !skipSemicolon {
				return pos
			}
			pos++
		case '#':
			pos = skipLineComment(query, pos+1)
		default:
			if pos+1 < len(query) && query[pos] == '-' && query[pos+1] == '-' {
				pos = skipLineComment(query, pos+2)
				continue
			}
			// Executable comments like /*!40101 SET ... */ are not statements we can see through.
			if pos+1 < len(query) && query[pos] == '/' && query[pos+1] == '*' {
				end := bytes.Index(query[pos+2:], []byte("*/"))
				if end < 0 {
					return len(query)
				}
				pos += end + 4
				continue
			}
			return pos
		}
	}
	return pos
}

func skipLineComment(query []byte, pos int) int {
	for pos < len(query) && query[pos] != '\n' {
		pos++
	}
	return pos
}

// readKeyword lowercases into a fresh buffer, the input is shared with the caller's string.
func readKeyword(query []byte, pos int) (string, int) {
	start := pos
	for pos < len(query) {
		ch := query[pos]
		if (ch < 'a' || ch > 'z') && (ch < 'A' || ch > 'Z') {
			break
		}
		pos++
	}
	if pos == start {
		return "", pos
	}
	word := make([]byte, pos-start)
	for i, ch := range query[start:pos] {
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		word[i] = ch
	}
	return hack.String(word), pos
}
