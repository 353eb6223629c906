package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/client"
	"github.com/xinkaiwang/northpole/services/northpole/internal/dashboard"
)

func newWatchCommand() *cobra.Command {
	var apiUrl string
	var refreshMs int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Terminal dashboard for a running serve instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("api-url") {
				settings.ApiUrl = apiUrl
			}
			// the dashboard owns the terminal
			klogging.SetDefaultLogger(klogging.NewNullLogger())
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			c := client.NewClient(settings.ApiUrl, settings.OpTimeoutMs)
			return dashboard.Run(ctx, c, time.Duration(refreshMs)*time.Millisecond)
		},
	}
	cmd.Flags().StringVar(&apiUrl, "api-url", "", "serve instance (default from config, http://localhost:8080)")
	cmd.Flags().IntVar(&refreshMs, "refresh-ms", 500, "status poll interval")
	return cmd
}
