// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import "github.com/pingcap/shardproxy/lib/util/errors"

var (
	ErrCloseServer = errors.New("failed to close server")
	ErrLoadConfig  = errors.New("failed to load config")
)
