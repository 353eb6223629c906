package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/observer"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
	"github.com/xinkaiwang/northpole/services/northpole/internal/sim"
	"github.com/xinkaiwang/northpole/services/northpole/internal/speed"
)

type simulateFlags struct {
	reindeer int
	elves    int
	noSanta  bool
}

func (f *simulateFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.reindeer, "reindeer", "r", 0, "number of reindeer agents (default from config, 9)")
	cmd.Flags().IntVarP(&f.elves, "elves", "e", 0, "number of elf agents (default from config, 10)")
	cmd.Flags().BoolVar(&f.noSanta, "no-santa", false, "agents only, another process runs santa")
}

func (f *simulateFlags) apply(cmd *cobra.Command) {
	if cmd.Flags().Changed("reindeer") {
		settings.Reindeer = f.reindeer
	}
	if cmd.Flags().Changed("elves") {
		settings.Elves = f.elves
	}
	if cmd.Flags().Changed("no-santa") {
		settings.NoSanta = f.noSanta
	}
}

func simConfigFromSettings(reset bool) sim.SimConfig {
	return sim.SimConfig{
		Reindeer:           settings.Reindeer,
		Elves:              settings.Elves,
		NoSanta:            settings.NoSanta,
		Reset:              reset,
		PollIntervalMs:     settings.PollIntervalMs,
		DispatchIntervalMs: settings.DispatchIntervalMs,
	}
}

func newSimulateCommand() *cobra.Command {
	flags := &simulateFlags{}
	var reset bool
	var metricsPort int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run reindeer and elf agents (and santa) against the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cmd)
			if cmd.Flags().Changed("metrics-port") {
				settings.MetricsPort = metricsPort
			}
			return runSimulate(cmd.Context(), reset)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&reset, "reset", false, "clear every worker before starting")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "prometheus port, 0 disables")
	return cmd
}

func runSimulate(parent context.Context, reset bool) error {
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
	if metricsServer != nil {
		defer metricsServer.Close()
	}

	pm := config.NewPathManager(settings.KeyPrefix)
	reg := registry.NewRegistry(provider, pm)
	coord := core.NewCoordinator(ctx, reg, core.CoordinatorConfig{OpTimeoutMs: settings.OpTimeoutMs, CommitRetries: settings.CommitRetries})
	defer coord.StopAndWaitForExit()
	tracker := speed.NewTracker(speed.NewStore(provider, pm))
	if metricsServer != nil {
		observer.NewObserver(reg).RegisterGauges(ctx, kmetrics.GetGaugeRegistry())
	}

	return sim.NewSimulation(coord, tracker, simConfigFromSettings(reset)).Run(ctx)
}
