// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"github.com/pingcap/shardproxy/pkg/proxy/backend"
)

// MetadataResponder answers the metadata queries that GUI clients send on their own.
// The proxy has no data for them and the data nodes would answer about the wrong schema.
type MetadataResponder interface {
	// RespondProcs answers the queries on mysql.proc.
	RespondProcs(conn *ServerConnection) error
	// RespondProfiling answers the profiling query of Navicat.
	RespondProfiling(conn *ServerConnection) error
	// RespondProfilingSqlyog answers the profiling query of SQLyog.
	RespondProfilingSqlyog(conn *ServerConnection) error
}

var (
	procColumns            = []string{"name", "type"}
	profilingColumns       = []string{"Status", "Duration", "Percentage"}
	profilingSqlyogColumns = []string{"Status", "Duration (summed) in sec", "Percentage"}
)

// EmptyResultResponder answers with empty result sets.
type EmptyResultResponder struct {
	Writer backend.ResultWriter
}

var _ MetadataResponder = (*EmptyResultResponder)(nil)

func (r *EmptyResultResponder) RespondProcs(*ServerConnection) error {
	return r.Writer.WriteResultSet("", procColumns, nil)
}

func (r *EmptyResultResponder) RespondProfiling(*ServerConnection) error {
	return r.Writer.WriteResultSet("", profilingColumns, nil)
}

func (r *EmptyResultResponder) RespondProfilingSqlyog(*ServerConnection) error {
	return r.Writer.WriteResultSet("", profilingSqlyogColumns, nil)
}
