// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package versioninfo

// These variables are set with -ldflags "-X" at build time.
var (
	ShardProxyVersion   = "None"
	ShardProxyGitBranch = "None"
	ShardProxyGitHash   = "None"
	ShardProxyBuildTS   = "None"
)
