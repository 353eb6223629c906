package speed

import (
	"context"
	"math"
	"math/rand"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/npjson"
)

const MaxDelayCeilingMs = 10000.0

type SpeedConfig struct {
	WorkSpeed     float64
	VacationSpeed float64
}

func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{WorkSpeed: npjson.DefaultWorkSpeed, VacationSpeed: npjson.DefaultVacationSpeed}
}

// MaxDelayMs maps a speed to the upper bound of a simulated duration on a log curve:
// speed 1 (or less) is 10s, 100 and above is 1ms.
func MaxDelayMs(speed float64) int {
	factor := math.Log(math.Max(speed, 1)) / math.Log(100)
	return int(math.Max(MaxDelayCeilingMs-MaxDelayCeilingMs*factor, 1))
}

// RandomDelayMs is uniform in [0, MaxDelayMs(speed)).
func RandomDelayMs(ctx context.Context, speed float64) int {
	max := MaxDelayMs(speed)
	var ret int
	kcommon.GetRandom(ctx, func(r *rand.Rand) {
		ret = r.Intn(max)
	})
	return ret
}

func validSpeed(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Store reads and writes the single speed record.
type Store struct {
	provider etcdprov.EtcdProvider
	pm       *config.PathManager
}

func NewStore(provider etcdprov.EtcdProvider, pm *config.PathManager) *Store {
	return &Store{provider: provider, pm: pm}
}

func parseSpeed(item etcdprov.EtcdKvItem) SpeedConfig {
	if !item.Exists() {
		return DefaultSpeedConfig()
	}
	sj := npjson.SpeedJsonFromJson(item.Value)
	return SpeedConfig{WorkSpeed: sj.WorkSpeed, VacationSpeed: sj.VacationSpeed}
}

// Get returns the defaults (50/50) while no record exists.
func (s *Store) Get(ctx context.Context) (ret SpeedConfig, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		ret = parseSpeed(s.provider.Get(ctx, s.pm.GetSpeedPath()))
	})
	return
}

// Set upserts both values. Negative, NaN or Inf values are EC_INVALID_PARAMETER.
func (s *Store) Set(ctx context.Context, cfg SpeedConfig) error {
	if !validSpeed(cfg.WorkSpeed) || !validSpeed(cfg.VacationSpeed) {
		return kerror.Create("InvalidSpeed", "speeds must be non-negative numbers").
			With("workSpeed", cfg.WorkSpeed).
			With("vacationSpeed", cfg.VacationSpeed).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return kcommon.TryCatchRunErr(ctx, func() {
		sj := &npjson.SpeedJson{WorkSpeed: cfg.WorkSpeed, VacationSpeed: cfg.VacationSpeed}
		s.provider.Set(ctx, s.pm.GetSpeedPath(), sj.ToJson())
		klogging.Info(ctx).With("workSpeed", cfg.WorkSpeed).With("vacationSpeed", cfg.VacationSpeed).Log("SpeedUpdated", "")
	})
}
