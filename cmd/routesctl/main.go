// Command routesctl runs the flag route service and its admin tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "routesctl",
		Short: "Flag placement route service",
		Args:  cobra.NoArgs,
		// Errors are printed once, by main.
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (env vars override it)")
	cmd.AddCommand(
		a.newServe(),
		a.newInstall(),
		a.newUninstall(),
		a.newRoutes(),
		a.newRoster(),
		newTail(),
		newVersion(),
	)
	return cmd
}
