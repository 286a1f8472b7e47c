package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/record"
)

func TestDefaultHotAndColdPassValidation(t *testing.T) {
	assert.NoError(t, config.DefaultHot().Validate())
	assert.NoError(t, config.DefaultCold().Validate())
}

func TestConfigurationValidateRejectsOutOfRangeFields(t *testing.T) {
	c := config.DefaultHot()
	c.ReplicationFactor = 0
	require.Error(t, c.Validate())

	c = config.DefaultHot()
	c.ReplicationFactor = 6
	require.Error(t, c.Validate())

	c = config.DefaultHot()
	c.ProvisionedReplicas = 1
	c.ReplicationFactor = 2
	require.Error(t, c.Validate())

	c = config.DefaultHot()
	c.ConsistencyLevel = "bogus"
	require.Error(t, c.Validate())

	c = config.DefaultCold()
	c.CompressionLevel = 9
	require.Error(t, c.Validate())

	c = config.DefaultHot()
	c.MaxRecords = 0
	require.Error(t, c.Validate())
}

func TestRegistryConfigValidateEnforcesThresholdOrdering(t *testing.T) {
	rc := config.DefaultRegistryConfig()
	assert.NoError(t, rc.Validate())

	rc.ColdThreshold = rc.HotThreshold
	assert.Error(t, rc.Validate())

	rc = config.DefaultRegistryConfig()
	rc.LoadBalancing = "bogus"
	assert.Error(t, rc.Validate())
}

func TestRetentionDefaultsForEachPolicy(t *testing.T) {
	tests := []struct {
		policy record.RetentionPolicy
		hours  float64
	}{
		{record.RetentionDebug, 24},
		{record.RetentionStandard, 30 * 24},
		{record.RetentionLong, 365 * 24},
	}
	for _, tc := range tests {
		got := config.RetentionDefaultsFor(tc.policy)
		assert.Equal(t, tc.hours, got.Hours())
	}
	assert.Equal(t, float64(0), config.RetentionDefaultsFor(record.RetentionPermanent).Hours())
}

func TestLoadWithNoFileReturnsValidatedDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRegistryConfig().HotThreshold, cfg.HotThreshold)
	assert.NoError(t, cfg.Validate())
}
