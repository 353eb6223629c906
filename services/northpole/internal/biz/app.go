package biz

import (
	"context"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/api"
	"github.com/xinkaiwang/northpole/services/northpole/internal/common"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/internal/observer"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
	"github.com/xinkaiwang/northpole/services/northpole/internal/speed"
)

// App wires the north pole components over one store. Methods panic a kerror on failure, the handler middleware turns it into a response.
type App struct {
	cfg      *config.NorthPoleConfig
	reg      *registry.Registry
	coord    *core.Coordinator
	observer *observer.Observer
	speeds   *speed.Store
	tracker  *speed.Tracker
}

func NewApp(ctx context.Context, cfg *config.NorthPoleConfig, provider etcdprov.EtcdProvider) *App {
	pm := config.NewPathManager(cfg.KeyPrefix)
	reg := registry.NewRegistry(provider, pm)
	speeds := speed.NewStore(provider, pm)
	app := &App{
		cfg:      cfg,
		reg:      reg,
		coord:    core.NewCoordinator(ctx, reg, core.CoordinatorConfig{OpTimeoutMs: cfg.OpTimeoutMs, CommitRetries: cfg.CommitRetries}),
		observer: observer.NewObserver(reg),
		speeds:   speeds,
		tracker:  speed.NewTracker(speeds),
	}
	klogging.Info(ctx).With("keyPrefix", cfg.KeyPrefix).With("store", cfg.Store).Log("AppCreated", "")
	return app
}

func (app *App) Coordinator() *core.Coordinator {
	return app.coord
}

func (app *App) Observer() *observer.Observer {
	return app.observer
}

func (app *App) Tracker() *speed.Tracker {
	return app.tracker
}

func (app *App) Close() {
	app.coord.StopAndWaitForExit()
}

func (app *App) Ping(ctx context.Context) string {
	return "northpole:" + common.GetVersion()
}

func (app *App) GetStatus(ctx context.Context) *api.StatusJson {
	status, err := app.observer.Summarize(ctx)
	if err != nil {
		panic(err)
	}
	return status
}

func (app *App) GetSpeeds(ctx context.Context) *api.SpeedsVm {
	cfg, err := app.speeds.Get(ctx)
	if err != nil {
		panic(err)
	}
	return &api.SpeedsVm{WorkSpeed: cfg.WorkSpeed, VacationSpeed: cfg.VacationSpeed}
}

func (app *App) SetSpeeds(ctx context.Context, req *api.SpeedsVm) *api.SpeedsVm {
	if err := app.speeds.Set(ctx, speed.SpeedConfig{WorkSpeed: req.WorkSpeed, VacationSpeed: req.VacationSpeed}); err != nil {
		panic(err)
	}
	klogging.Info(ctx).With("workSpeed", req.WorkSpeed).With("vacationSpeed", req.VacationSpeed).Log("SpeedsUpdated", "")
	return &api.SpeedsVm{WorkSpeed: req.WorkSpeed, VacationSpeed: req.VacationSpeed}
}

// Dispatch with an empty class behaves like santa: whichever class is eligible, reindeer first.
func (app *App) Dispatch(ctx context.Context, req *api.DispatchRequest) *api.DispatchResponse {
	var result *core.DispatchResult
	var err error
	if req.Class == "" {
		result, err = app.coord.TryDispatch(ctx)
	} else {
		result, err = app.coord.Dispatch(ctx, data.ParseWorkerClass(req.Class))
	}
	if err != nil {
		panic(err)
	}
	if result == nil {
		return &api.DispatchResponse{Dispatched: false}
	}
	return &api.DispatchResponse{
		Dispatched: true,
		GroupId:    string(result.GroupId),
		Class:      string(result.Class),
		Members:    idStrings(result.Members),
		Command:    core.SantaCommand(result.Class),
	}
}

func (app *App) Release(ctx context.Context) *api.ReleaseResponse {
	result, err := app.coord.Release(ctx)
	if err != nil {
		panic(err)
	}
	if result == nil {
		return &api.ReleaseResponse{Released: false}
	}
	return &api.ReleaseResponse{
		Released: true,
		GroupId:  string(result.GroupId),
		Class:    string(result.Class),
		Members:  idStrings(result.Members),
	}
}

func (app *App) Reset(ctx context.Context) *api.ResetResponse {
	deleted, err := app.coord.Reset(ctx)
	if err != nil {
		panic(err)
	}
	return &api.ResetResponse{Deleted: deleted}
}

func (app *App) GetWorker(ctx context.Context, id string) *api.WorkerVm {
	if id == "" {
		panic(kerror.Create("MissingWorkerId", "id is required").WithErrorCode(kerror.EC_INVALID_PARAMETER))
	}
	w, err := app.reg.Get(ctx, data.WorkerId(id))
	if err != nil {
		panic(err)
	}
	return &api.WorkerVm{
		WorkerId:     string(w.Id),
		Class:        string(w.Class),
		State:        string(w.State),
		GroupId:      string(w.GroupId),
		CreatedMs:    w.CreatedAtMs,
		UpdateReason: w.UpdateReason,
	}
}

func idStrings(ids []data.WorkerId) []string {
	ret := make([]string, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, string(id))
	}
	return ret
}
