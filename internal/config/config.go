// Package config holds the per-processor Configuration and registry-level
// settings, loaded with defaults and overlaid from YAML/env via Viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/xerrors"
)

// ConsistencyLevel is one of strong/eventual/weak.
type ConsistencyLevel string

const (
	ConsistencyStrong   ConsistencyLevel = "strong"
	ConsistencyEventual ConsistencyLevel = "eventual"
	ConsistencyWeak     ConsistencyLevel = "weak"
)

// LoadBalancingStrategy names one of the registry's routing policies.
type LoadBalancingStrategy string

const (
	StrategyRoundRobin  LoadBalancingStrategy = "round-robin"
	StrategyWeighted    LoadBalancingStrategy = "weighted"
	StrategyLeastLoaded LoadBalancingStrategy = "least-loaded"
	StrategyRandom      LoadBalancingStrategy = "random"
)

// Configuration is the enumerated set of per-processor options from
// spec.md §3.
type Configuration struct {
	MaxRecords          int
	MaxSize             int64
	CompressionEnabled  bool
	ReplicationFactor   int
	CacheSize           int
	ConnectionPoolSize  int
	QueryTimeout        time.Duration
	BackupFrequency     time.Duration
	EncryptionEnabled   bool
	AutoIndexing        bool
	ConsistencyLevel    ConsistencyLevel
	CustomProperties    map[string]string

	// Cold-tier specific, zero-valued and ignored for hot processors.
	BatchSize           int
	BatchFlushInterval  time.Duration
	CompressionLevel    int // 1..5

	// Provisioned replica count backing ReplicationFactor's invariant.
	ProvisionedReplicas int
}

// Validate enforces the enumerated ranges from §3's invariants, returning
// InvalidConfiguration on the first violation.
func (c Configuration) Validate() error {
	if c.ReplicationFactor < 1 || c.ReplicationFactor > 5 {
		return xerrors.New(xerrors.InvalidConfiguration, "replicationFactor must be in [1,5]")
	}
	if c.ProvisionedReplicas > 0 && c.ReplicationFactor > c.ProvisionedReplicas {
		return xerrors.New(xerrors.InvalidConfiguration, "replicationFactor exceeds provisioned replicas")
	}
	switch c.ConsistencyLevel {
	case ConsistencyStrong, ConsistencyEventual, ConsistencyWeak:
	default:
		return xerrors.New(xerrors.InvalidConfiguration, "consistencyLevel must be strong|eventual|weak")
	}
	if c.CompressionLevel != 0 && (c.CompressionLevel < 1 || c.CompressionLevel > 5) {
		return xerrors.New(xerrors.InvalidConfiguration, "compressionLevel must be in [1,5]")
	}
	if c.MaxRecords <= 0 {
		return xerrors.New(xerrors.InvalidConfiguration, "maxRecords must be positive")
	}
	return nil
}

// DefaultHot returns the hot-tier default configuration.
func DefaultHot() Configuration {
	return Configuration{
		MaxRecords:          100_000,
		MaxSize:             1 << 30,
		CompressionEnabled:  false,
		ReplicationFactor:   1,
		ProvisionedReplicas: 1,
		CacheSize:           100,
		ConnectionPoolSize:  10,
		QueryTimeout:        5 * time.Second,
		BackupFrequency:     time.Hour,
		AutoIndexing:        true,
		ConsistencyLevel:    ConsistencyStrong,
		CustomProperties:    map[string]string{},
	}
}

// DefaultCold returns the cold-tier default configuration.
func DefaultCold() Configuration {
	c := DefaultHot()
	c.CompressionEnabled = true
	c.ConsistencyLevel = ConsistencyEventual
	c.BatchSize = 1000
	c.BatchFlushInterval = 30 * time.Second
	c.CompressionLevel = 3
	return c
}

// RegistryConfig is the registry-wide configuration from spec.md §6.
type RegistryConfig struct {
	HotThreshold        float64
	ColdThreshold       float64
	MigrationCooldown   time.Duration
	HealthCheckInterval time.Duration
	LoadBalancing       LoadBalancingStrategy

	AutoScalingEnabled        bool
	AutoScalingMin            int
	AutoScalingMax            int
	AutoScalingScaleUp        float64
	AutoScalingScaleDown      float64

	RetentionMaxInactive    time.Duration
	RetentionCompression    bool
	RetentionArchiveStorage string

	// Cost-tier sweep thresholds (spec.md §4.3): a cold record must cross all
	// three before it is migrated into deep-archive storage.
	CostTierMaxFrequency int
	CostTierMinAge       time.Duration
	CostTierMinSize      int

	DrainGracePeriod time.Duration
	LogLevel         string
}

// DefaultRegistryConfig returns the documented defaults from spec.md §6.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		HotThreshold:            100,
		ColdThreshold:           10,
		MigrationCooldown:       time.Hour,
		HealthCheckInterval:     30 * time.Second,
		LoadBalancing:           StrategyRoundRobin,
		AutoScalingMin:          1,
		AutoScalingMax:          1,
		AutoScalingScaleUp:      0.8,
		AutoScalingScaleDown:    0.3,
		RetentionMaxInactive:    24 * time.Hour,
		RetentionCompression:    true,
		RetentionArchiveStorage: "local",
		CostTierMaxFrequency:    1,
		CostTierMinAge:          90 * 24 * time.Hour,
		CostTierMinSize:         1 << 20,
		DrainGracePeriod:        10 * time.Second,
		LogLevel:                "info",
	}
}

// Load overlays defaults with a YAML config file (if present) and
// SHARDREGISTRY_-prefixed environment variables, the way the teacher's own
// cmn.Config loads a defaults-then-overlay JSON document.
func Load(path string) (RegistryConfig, error) {
	cfg := DefaultRegistryConfig()

	v := viper.New()
	v.SetEnvPrefix("SHARDREGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, xerrors.Wrap(err, xerrors.InvalidConfiguration, "reading registry config file")
		}
	}

	if v.IsSet("hotThreshold") {
		cfg.HotThreshold = v.GetFloat64("hotThreshold")
	}
	if v.IsSet("coldThreshold") {
		cfg.ColdThreshold = v.GetFloat64("coldThreshold")
	}
	if v.IsSet("migrationCooldown") {
		cfg.MigrationCooldown = v.GetDuration("migrationCooldown")
	}
	if v.IsSet("healthCheckInterval") {
		cfg.HealthCheckInterval = v.GetDuration("healthCheckInterval")
	}
	if v.IsSet("loadBalancingStrategy") {
		cfg.LoadBalancing = LoadBalancingStrategy(v.GetString("loadBalancingStrategy"))
	}
	if v.IsSet("logLevel") {
		cfg.LogLevel = v.GetString("logLevel")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the registry-level enums.
func (c RegistryConfig) Validate() error {
	switch c.LoadBalancing {
	case StrategyRoundRobin, StrategyWeighted, StrategyLeastLoaded, StrategyRandom:
	default:
		return xerrors.New(xerrors.InvalidConfiguration, "loadBalancingStrategy invalid")
	}
	if c.HotThreshold <= c.ColdThreshold {
		return xerrors.New(xerrors.InvalidConfiguration, "hotThreshold must exceed coldThreshold")
	}
	return nil
}

// RetentionDefaultsFor returns the default retention duration for a log
// level / retention category, per spec.md §4.3's category table.
func RetentionDefaultsFor(policy record.RetentionPolicy) time.Duration {
	switch policy {
	case record.RetentionDebug:
		return 24 * time.Hour
	case record.RetentionStandard:
		return 30 * 24 * time.Hour
	case record.RetentionLong:
		return 365 * 24 * time.Hour
	case record.RetentionPermanent:
		return 0 // never expires
	default:
		return 30 * 24 * time.Hour
	}
}
