// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/pingcap/shardproxy/lib/util/cmd"
	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/pingcap/shardproxy/pkg/sctx"
	"github.com/pingcap/shardproxy/pkg/server"
	"github.com/pingcap/shardproxy/pkg/util/versioninfo"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     os.Args[0],
		Short:   "start the sharding proxy and run the statements read from stdin",
		Version: fmt.Sprintf("%s, commit %s", versioninfo.ShardProxyVersion, versioninfo.ShardProxyGitHash),
	}
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	sctx := &sctx.Context{}
	var user string
	var daemon bool
	rootCmd.PersistentFlags().StringVar(&sctx.ConfigFile, "config", "", "proxy config file path")
	rootCmd.PersistentFlags().StringVar(&sctx.AdvertiseAddr, "advertise-addr", "", "advertise address")
	rootCmd.PersistentFlags().StringVar(&user, "user", "root", "the user of the stdin connection")
	rootCmd.PersistentFlags().BoolVar(&daemon, "daemon", false, "only serve the HTTP API, don't read stdin")

	rootCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		srv, err := server.NewServer(cmd.Context(), sctx)
		if err != nil {
			return errors.Wrapf(err, "fail to create server")
		}

		if daemon {
			<-cmd.Context().Done()
		} else {
			c := newConsole(srv.Catalog, cmd.OutOrStdout())
			c.attach(srv.NewConnection(user, "stdin", c))
			err = c.run(cmd.Context(), cmd.InOrStdin())
		}
		if e := srv.Close(); e != nil {
			err = errors.Collect(errors.New("shutdown with errors"), err, e)
		}
		return err
	}

	cmd.RunRootCommand(rootCmd)
}
