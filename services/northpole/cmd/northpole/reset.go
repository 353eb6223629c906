package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
)

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every worker and the active group, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			provider, err := openStore(ctx, settings)
			if err != nil {
				return err
			}
			defer provider.Close()
			reg := registry.NewRegistry(provider, config.NewPathManager(settings.KeyPrefix))
			coord := core.NewCoordinator(ctx, reg, core.CoordinatorConfig{OpTimeoutMs: settings.OpTimeoutMs, CommitRetries: settings.CommitRetries})
			defer coord.StopAndWaitForExit()

			deleted, err := coord.Reset(ctx)
			if err != nil {
				return err
			}
			klogging.Info(ctx).With("deleted", deleted).Log("ResetDone", "")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", deleted)
			return nil
		},
	}
}
