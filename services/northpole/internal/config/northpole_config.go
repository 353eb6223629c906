package config

import (
	"context"
	"os"
	"strings"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"gopkg.in/yaml.v3"
)

const (
	StoreEtcd   = "etcd"
	StoreMemory = "memory"
)

// NorthPoleConfig: defaults, then the yaml file (if any), then env. Flags are applied by the cli on top.
type NorthPoleConfig struct {
	Store             string   `yaml:"store"`
	EtcdEndpoints     []string `yaml:"etcd_endpoints"`
	EtcdDialTimeoutMs int      `yaml:"etcd_dial_timeout_ms"`
	KeyPrefix         string   `yaml:"key_prefix"`

	Reindeer int  `yaml:"reindeer"`
	Elves    int  `yaml:"elves"`
	NoSanta  bool `yaml:"no_santa"`

	// agents poll their own record roughly this often, each with its own jitter
	PollIntervalMs     int `yaml:"poll_interval_ms"`
	DispatchIntervalMs int `yaml:"dispatch_interval_ms"`
	OpTimeoutMs        int `yaml:"op_timeout_ms"`
	CommitRetries      int `yaml:"commit_retries"`

	ApiPort     int    `yaml:"api_port"`
	MetricsPort int    `yaml:"metrics_port"`
	ApiUrl      string `yaml:"api_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func NewDefaultConfig() *NorthPoleConfig {
	return &NorthPoleConfig{
		Store:              StoreEtcd,
		EtcdEndpoints:      []string{"localhost:2379"},
		EtcdDialTimeoutMs:  5000,
		KeyPrefix:          "/northpole",
		Reindeer:           9,
		Elves:              10,
		PollIntervalMs:     200,
		DispatchIntervalMs: 500,
		OpTimeoutMs:        5000,
		CommitRetries:      10,
		ApiPort:            8080,
		MetricsPort:        9090,
		ApiUrl:             "http://localhost:8080",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// LoadConfig panics a kerror (EC_INVALID_PARAMETER) on an unreadable file or invalid values.
func LoadConfig(ctx context.Context, path string) *NorthPoleConfig {
	cfg := NewDefaultConfig()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			panic(kerror.Wrap(err, "ConfigReadError", "failed to read config file", false).With("path", path).WithErrorCode(kerror.EC_INVALID_PARAMETER))
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			panic(kerror.Wrap(err, "ConfigParseError", "failed to parse config file", false).With("path", path).WithErrorCode(kerror.EC_INVALID_PARAMETER))
		}
		klogging.Info(ctx).With("path", path).Log("ConfigFileLoaded", "")
	}
	cfg.ApplyEnv()
	cfg.Validate()
	return cfg
}

func (cfg *NorthPoleConfig) ApplyEnv() {
	cfg.Store = kcommon.GetEnvString("NP_STORE", cfg.Store)
	if endpoints := kcommon.GetEnvString("ETCD_ENDPOINTS", ""); endpoints != "" {
		cfg.EtcdEndpoints = strings.Split(endpoints, ",")
	}
	cfg.EtcdDialTimeoutMs = kcommon.GetEnvInt("ETCD_DIAL_TIMEOUT_MS", cfg.EtcdDialTimeoutMs)
	cfg.KeyPrefix = kcommon.GetEnvString("NP_KEY_PREFIX", cfg.KeyPrefix)
	cfg.Reindeer = kcommon.GetEnvInt("NP_REINDEER", cfg.Reindeer)
	cfg.Elves = kcommon.GetEnvInt("NP_ELVES", cfg.Elves)
	cfg.NoSanta = kcommon.GetEnvBool("NP_NO_SANTA", cfg.NoSanta)
	cfg.PollIntervalMs = kcommon.GetEnvInt("NP_POLL_INTERVAL_MS", cfg.PollIntervalMs)
	cfg.DispatchIntervalMs = kcommon.GetEnvInt("NP_DISPATCH_INTERVAL_MS", cfg.DispatchIntervalMs)
	cfg.OpTimeoutMs = kcommon.GetEnvInt("NP_OP_TIMEOUT_MS", cfg.OpTimeoutMs)
	cfg.CommitRetries = kcommon.GetEnvInt("NP_COMMIT_RETRIES", cfg.CommitRetries)
	cfg.ApiPort = kcommon.GetEnvInt("API_PORT", cfg.ApiPort)
	cfg.MetricsPort = kcommon.GetEnvInt("METRICS_PORT", cfg.MetricsPort)
	cfg.ApiUrl = kcommon.GetEnvString("NP_API_URL", cfg.ApiUrl)
	cfg.LogLevel = kcommon.GetEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = kcommon.GetEnvString("LOG_FORMAT", cfg.LogFormat)
}

func invalid(field string, value interface{}) *kerror.Kerror {
	return kerror.Create("InvalidConfig", "config value out of range").
		With("field", field).
		With("value", value).
		WithErrorCode(kerror.EC_INVALID_PARAMETER)
}

func (cfg *NorthPoleConfig) Validate() {
	if cfg.Store != StoreEtcd && cfg.Store != StoreMemory {
		panic(invalid("store", cfg.Store))
	}
	if cfg.Store == StoreEtcd && len(cfg.EtcdEndpoints) == 0 {
		panic(invalid("etcd_endpoints", cfg.EtcdEndpoints))
	}
	if !strings.HasPrefix(cfg.KeyPrefix, "/") || strings.HasSuffix(cfg.KeyPrefix, "/") {
		panic(invalid("key_prefix", cfg.KeyPrefix))
	}
	if cfg.Reindeer < 0 {
		panic(invalid("reindeer", cfg.Reindeer))
	}
	if cfg.Elves < 0 {
		panic(invalid("elves", cfg.Elves))
	}
	if cfg.PollIntervalMs <= 0 {
		panic(invalid("poll_interval_ms", cfg.PollIntervalMs))
	}
	if cfg.DispatchIntervalMs <= 0 {
		panic(invalid("dispatch_interval_ms", cfg.DispatchIntervalMs))
	}
	if cfg.OpTimeoutMs <= 0 {
		panic(invalid("op_timeout_ms", cfg.OpTimeoutMs))
	}
	if cfg.CommitRetries <= 0 {
		panic(invalid("commit_retries", cfg.CommitRetries))
	}
	klogging.ParseLogLevel(cfg.LogLevel)
	klogging.ParseLogFormat(cfg.LogFormat)
}
