// cmd wires the driver into a runnable harness: one subcommand per
// lifecycle action, a YAML configuration file in, a JSON state file
// round-tripped out.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	statePath  string
)

var rootCmd = &cobra.Command{
	Use:           "kitchen-ec2",
	Short:         "Provision and tear down EC2 instances for Test Kitchen runs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".kitchen.yml", "path to the driver configuration file")
	rootCmd.PersistentFlags().StringVarP(&statePath, "state", "s", ".kitchen/state.json", "path to the instance state file")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(destroyCmd)
}
