// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package stmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sql string
		tp  Type
	}{
		{"select 1", Select},
		{"  SELECT * FROM t", Select},
		{"/* comment */ select 1", Select},
		{"-- comment\nselect 1", Select},
		{"# comment\nselect 1", Select},
		{";;select 1", Select},
		{"(select 1) union (select 2)", Select},
		{"with cte as (select 1) select * from cte", Select},
		{"insert into t values (1)", Insert},
		{"UPDATE t SET a = 1", Update},
		{"delete from t", Delete},
		{"replace into t values (1)", Replace},
		{"create table t (a int)", DDL},
		{"ALTER TABLE t ADD COLUMN b INT", DDL},
		{"drop table t", DDL},
		{"truncate table t", DDL},
		{"lock tables t write", Lock},
		{"unlock tables", Unlock},
		{"show databases", Show},
		{"use db1", Use},
		{"set autocommit = 0", Set},
		{"explain select 1", Explain},
		{"desc t", Describe},
		{"describe t", Describe},
		{"help 'contents'", Help},
		{"begin", Begin},
		{"start transaction", Begin},
		{"START /* c */ TRANSACTION", Begin},
		{"start slave", Other},
		{"commit", Commit},
		{"rollback", Rollback},
		{"kill query 10", Kill},
		{"load data infile 'a' into table t", Load},
		{"call p()", Call},
		{"", Other},
		{"   ", Other},
		{"/* unterminated", Other},
		{"123", Other},
		{"grant all on *.* to u", Other},
	}
	for _, test := range tests {
		require.Equal(t, test.tp, Classify(test.sql), test.sql)
	}
}

func TestTypeProperties(t *testing.T) {
	for _, tp := range AllTypes {
		require.NotEmpty(t, tp.String())
	}
	require.Equal(t, "other", Type(100).String())
	require.True(t, Select.IsDML())
	require.False(t, DDL.IsDML())
	require.True(t, DDL.CheckSchema())
	require.False(t, Show.CheckSchema())
	require.False(t, Replace.CheckSchema())
}
