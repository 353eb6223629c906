package sim

import (
	"context"

	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/internal/agent"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/santa"
	"github.com/xinkaiwang/northpole/services/northpole/internal/speed"
	"golang.org/x/sync/errgroup"
)

type SimConfig struct {
	Reindeer           int
	Elves              int
	NoSanta            bool
	Reset              bool
	PollIntervalMs     int
	DispatchIntervalMs int
}

// Simulation runs a fleet of agents (and optionally santa) against one coordinator.
// Two simulations on one store, one of them NoSanta, behave like one bigger fleet.
type Simulation struct {
	coord   *core.Coordinator
	tracker *speed.Tracker
	cfg     SimConfig
}

func NewSimulation(coord *core.Coordinator, tracker *speed.Tracker, cfg SimConfig) *Simulation {
	return &Simulation{coord: coord, tracker: tracker, cfg: cfg}
}

// Run returns when ctx is done, or with the first agent registration error.
func (sim *Simulation) Run(ctx context.Context) error {
	if sim.cfg.Reset {
		deleted, err := sim.coord.Reset(ctx)
		if err != nil {
			return err
		}
		klogging.Info(ctx).With("deleted", deleted).Log("SimulationReset", "starting from an empty north pole")
	}
	klogging.Info(ctx).
		With("reindeer", sim.cfg.Reindeer).
		With("elves", sim.cfg.Elves).
		With("santa", !sim.cfg.NoSanta).
		Log("SimulationStarting", "")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sim.tracker.Run(gctx)
		return nil
	})
	sim.spawn(gctx, g, data.WC_Reindeer, sim.cfg.Reindeer)
	sim.spawn(gctx, g, data.WC_Elves, sim.cfg.Elves)
	if !sim.cfg.NoSanta {
		s := santa.NewSanta(sim.coord, sim.cfg.DispatchIntervalMs)
		g.Go(func() error { return s.Run(gctx) })
	}
	err := g.Wait()
	klogging.Info(ctx).WithError(err).Log("SimulationStopped", "")
	return err
}

func (sim *Simulation) spawn(ctx context.Context, g *errgroup.Group, class data.WorkerClass, count int) {
	for i := 0; i < count; i++ {
		a := agent.NewAgent(ctx, class, sim.coord, sim.tracker, sim.cfg.PollIntervalMs)
		g.Go(func() error { return a.Run(ctx) })
	}
}
