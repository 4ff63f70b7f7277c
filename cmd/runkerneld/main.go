// Command runkerneld is the thin CLI/server entry point for a kernel node:
// deploy a class, load or sync a location, or serve metrics while a
// long-running in-process kernel stays resident. It is intentionally thin,
// a full CLI/wallet surface is out of scope, just enough to run the kernel
// built in pkg/kernel.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/runkernel/kernel/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:   "runkerneld",
		Short: "run a kernel node",
	}
	root.PersistentFlags().String("env", "", "config overlay to merge on top of cmd/config/default.yaml")
	root.AddCommand(serveCmd())
	root.AddCommand(deployCmd())
	root.AddCommand(loadCmd())
	root.AddCommand(syncCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	env, _ := cmd.Flags().GetString("env")
	return config.Load(env)
}
