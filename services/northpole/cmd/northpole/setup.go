package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/spf13/cobra"
	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/libs/xklib/ksysmetrics"
	"github.com/xinkaiwang/northpole/services/northpole/internal/common"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"go.opencensus.io/metric/metricproducer"
)

var globalFlags struct {
	configPath    string
	store         string
	etcdEndpoints []string
	keyPrefix     string
	logLevel      string
	logFormat     string
}

var settings *config.NorthPoleConfig

// loadSettings: defaults, config file, env, then any flag the user actually set.
func loadSettings(cmd *cobra.Command) error {
	ctx := cmd.Context()
	return kcommon.TryCatchRunErr(ctx, func() {
		cfg := config.LoadConfig(ctx, globalFlags.configPath)
		flags := cmd.Flags()
		if flags.Changed("store") {
			cfg.Store = globalFlags.store
		}
		if flags.Changed("etcd-endpoints") {
			cfg.EtcdEndpoints = globalFlags.etcdEndpoints
		}
		if flags.Changed("key-prefix") {
			cfg.KeyPrefix = globalFlags.keyPrefix
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = globalFlags.logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = globalFlags.logFormat
		}
		cfg.Validate()
		settings = cfg

		logger := klogging.NewLogrusLogger(ctx).
			WithMetricsReporter(logMetricsReporter{}).
			SetConfig(ctx, cfg.LogLevel, cfg.LogFormat)
		klogging.SetDefaultLogger(logger)
		klogging.Info(ctx).
			With("version", common.GetVersion()).
			With("sessionId", common.GetSessionId()).
			With("command", cmd.Name()).
			With("logLevel", cfg.LogLevel).
			Log("NorthPoleStarting", "")
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openStore installs the provider as the current one and returns it.
func openStore(ctx context.Context, cfg *config.NorthPoleConfig) (provider etcdprov.EtcdProvider, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		switch cfg.Store {
		case config.StoreMemory:
			klogging.Warning(ctx).Log("MemoryStore", "state lives in this process only")
			provider = etcdprov.NewFakeEtcdProvider()
		case config.StoreEtcd:
			provider = etcdprov.NewDefaultEtcdProvider(ctx, cfg.EtcdEndpoints, cfg.EtcdDialTimeoutMs)
		default:
			panic(kerror.Create("UnknownStore", "store must be etcd or memory").With("store", cfg.Store).WithErrorCode(kerror.EC_INVALID_PARAMETER))
		}
		etcdprov.SetCurrentEtcdProvider(provider)
	})
	return
}

// startMetricsServer exposes the kmetrics, gauge and process registries on /metrics. Returns nil when port is 0.
func startMetricsServer(ctx context.Context, port int) (*http.Server, error) {
	if port == 0 {
		return nil, nil
	}
	pe, err := prometheus.NewExporter(prometheus.Options{Namespace: "northpole"})
	if err != nil {
		return nil, kerror.Wrap(err, "PrometheusExporterError", "failed to create exporter", false)
	}
	metricproducer.GlobalManager().AddProducer(kmetrics.GetKmetricsRegistry())
	metricproducer.GlobalManager().AddProducer(kmetrics.GetGaugeRegistry())
	metricproducer.GlobalManager().AddProducer(ksysmetrics.GetRegistry())
	ksysmetrics.StartSysMetricsCollector(ctx, 15*time.Second, common.GetVersion())

	mux := http.NewServeMux()
	mux.Handle("/metrics", pe)
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		klogging.Info(ctx).With("addr", server.Addr).Log("MetricsServerStarting", "")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			klogging.Error(ctx).WithError(err).Log("MetricsServerError", "")
		}
	}()
	return server, nil
}
