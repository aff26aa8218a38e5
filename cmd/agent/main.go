// Package main is the entry point for the bytehot-go hot-swap agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// set by -ldflags at release build time; left as defaults for dev builds.
	version = "0.1.0"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "bytehot-agent",
		Short:   "Watches compiled class artifacts and hot-swaps them into a running program",
		Version: fmt.Sprintf("%s (%s)", version, commit),
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	root.AddCommand(newRunCmd(&configPath))
	return root
}
