// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pingcap/shardproxy/lib/util/errors"
	"github.com/spf13/cobra"
)

const (
	connPrefix = "/api/connections/"
)

func GetConnCmd(ctx *Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conn",
		Short: "",
	}

	// list connections
	{
		listConn := &cobra.Command{
			Use: "list",
		}
		listConn.RunE = func(cmd *cobra.Command, args []string) error {
			resp, err := doRequest(cmd.Context(), ctx, http.MethodGet, connPrefix, nil)
			if err != nil {
				return err
			}

			cmd.Println(resp)
			return nil
		}
		rootCmd.AddCommand(listConn)
	}

	// cancel the running statement
	{
		cancelConn := &cobra.Command{
			Use:  "cancel [id]",
			Args: cobra.ExactArgs(1),
		}
		sponsor := cancelConn.Flags().String("sponsor", "shardproxyctl", "who cancels the statement")
		cancelConn.RunE = func(cmd *cobra.Command, args []string) error {
			id, err := parseConnID(args[0])
			if err != nil {
				return err
			}
			path := fmt.Sprintf("%s%d/cancel?sponsor=%s", connPrefix, id, url.QueryEscape(*sponsor))
			resp, err := doRequest(cmd.Context(), ctx, http.MethodPost, path, nil)
			if err != nil {
				return err
			}

			cmd.Println(resp)
			return nil
		}
		rootCmd.AddCommand(cancelConn)
	}

	// close the connection
	{
		closeConn := &cobra.Command{
			Use:  "close [id]",
			Args: cobra.ExactArgs(1),
		}
		closeConn.RunE = func(cmd *cobra.Command, args []string) error {
			id, err := parseConnID(args[0])
			if err != nil {
				return err
			}
			resp, err := doRequest(cmd.Context(), ctx, http.MethodDelete, fmt.Sprintf("%s%d", connPrefix, id), nil)
			if err != nil {
				return err
			}

			cmd.Println(resp)
			return nil
		}
		rootCmd.AddCommand(closeConn)
	}

	return rootCmd
}

func parseConnID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid connection id %s", s)
	}
	return id, nil
}
