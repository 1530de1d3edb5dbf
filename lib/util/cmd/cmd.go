// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RunRootCommand executes rootCmd with a context that is canceled on SIGINT, SIGTERM or SIGQUIT.
func RunRootCommand(rootCmd *cobra.Command) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Printf("%+v\n", err)
		cancel()
		os.Exit(1)
	}
}
