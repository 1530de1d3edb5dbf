// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"net/http"

	"github.com/spf13/cobra"
)

const (
	configPrefix = "/api/admin/config/"
)

func GetConfigCmd(ctx *Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "config",
		Short: "",
	}

	// get config
	{
		getProxy := &cobra.Command{
			Use: "get",
		}
		format := getProxy.Flags().String("format", "toml", "toml or json")
		getProxy.RunE = func(cmd *cobra.Command, args []string) error {
			url := configPrefix
			if *format == "json" {
				url += "?format=json"
			}
			resp, err := doRequest(cmd.Context(), ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}

			cmd.Println(resp)
			return nil
		}
		rootCmd.AddCommand(getProxy)
	}

	return rootCmd
}
