package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xinkaiwang/northpole/services/northpole/internal/common"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "northpole "+common.GetVersion())
		},
	}
}
