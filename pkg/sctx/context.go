// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package sctx

import (
	"github.com/pingcap/shardproxy/lib/config"
)

// Context is what the command line passes to the server.
type Context struct {
	// Overlay is used when ConfigFile is empty.
	Overlay       config.Config
	ConfigFile    string
	AdvertiseAddr string
}
