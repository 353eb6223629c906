package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/services/northpole/internal/biz"
	"github.com/xinkaiwang/northpole/services/northpole/internal/handler"
	"github.com/xinkaiwang/northpole/services/northpole/internal/sim"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	var apiPort, metricsPort int
	var withSim bool
	simFlags := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP api (status, speeds, dispatch, release, reset)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("api-port") {
				settings.ApiPort = apiPort
			}
			if cmd.Flags().Changed("metrics-port") {
				settings.MetricsPort = metricsPort
			}
			simFlags.apply(cmd)
			return runServe(cmd.Context(), withSim)
		},
	}
	cmd.Flags().IntVar(&apiPort, "api-port", 0, "api port (default from config, 8080)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "prometheus port, 0 disables")
	cmd.Flags().BoolVar(&withSim, "with-sim", false, "also run a simulation in this process (needed with --store=memory)")
	simFlags.register(cmd)
	return cmd
}

func runServe(parent context.Context, withSim bool) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	provider, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer provider.Close()
	metricsServer, err := startMetricsServer(ctx, settings.MetricsPort)
	if err != nil {
		return err
	}

	app := biz.NewApp(ctx, settings, provider)
	defer app.Close()
	app.Observer().RegisterGauges(ctx, kmetrics.GetGaugeRegistry())

	mux := http.NewServeMux()
	handler.NewHandler(app).RegisterRoutes(mux)
	server := &http.Server{Addr: fmt.Sprintf(":%d", settings.ApiPort), Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		klogging.Info(gctx).With("addr", server.Addr).Log("MainServerStarting", "")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		klogging.Info(ctx).Log("ServerShutdown", "shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
		return server.Shutdown(shutdownCtx)
	})
	if withSim {
		simulation := sim.NewSimulation(app.Coordinator(), app.Tracker(), simConfigFromSettings(false))
		g.Go(func() error { return simulation.Run(gctx) })
	}
	err = g.Wait()
	klogging.Info(ctx).WithError(err).Log("ServerStopped", "")
	return err
}
