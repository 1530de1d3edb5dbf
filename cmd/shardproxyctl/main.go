// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pingcap/shardproxy/lib/cli"
	"github.com/pingcap/shardproxy/lib/util/cmd"
	"github.com/pingcap/shardproxy/pkg/util/versioninfo"
)

func main() {
	rootCmd := cli.GetRootCmd(nil)
	rootCmd.Version = fmt.Sprintf("%s, commit %s", versioninfo.ShardProxyVersion, versioninfo.ShardProxyGitHash)
	rootCmd.Use = strings.Replace(rootCmd.Use, "shardproxyctl", os.Args[0], 1)
	cmd.RunRootCommand(rootCmd)
}
