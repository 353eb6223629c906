package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "northpole",
	Short: "North Pole dispatch coordinator: santa, nine reindeer and a crowd of elves",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadSettings(cmd)
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.configPath, "config", "", "yaml config file")
	flags.StringVar(&globalFlags.store, "store", "", "store backend: etcd or memory")
	flags.StringSliceVar(&globalFlags.etcdEndpoints, "etcd-endpoints", nil, "etcd endpoints, comma separated")
	flags.StringVar(&globalFlags.keyPrefix, "key-prefix", "", "key prefix in the store")
	flags.StringVar(&globalFlags.logLevel, "log-level", "", "fatal, error, warn, info, debug or verbose")
	flags.StringVar(&globalFlags.logFormat, "log-format", "", "text, json or simple")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSimulateCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "northpole failed: %v\n", err)
		os.Exit(1)
	}
}
