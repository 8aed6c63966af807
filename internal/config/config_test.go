package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "t3.micro", cfg.InstanceType)
	assert.Equal(t, "0.0.0.0/0", cfg.SecurityGroupCIDRIP)
	assert.Equal(t, 60, cfg.RetryableTries)
	assert.Equal(t, 5, cfg.RetryableSleep)
	assert.Equal(t, map[string]string{"created-by": "test-kitchen"}, cfg.Tags)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"zero value", func(*Config) {}, true},
		{"dedicated tenancy", func(c *Config) { c.Tenancy = "dedicated" }, true},
		{"bad tenancy", func(c *Config) { c.Tenancy = "shared" }, false},
		{"terminate shutdown", func(c *Config) { c.ShutdownBehavior = "terminate" }, true},
		{"bad shutdown", func(c *Config) { c.ShutdownBehavior = "hibernate" }, false},
		{"private interface", func(c *Config) { c.Interface = "private" }, true},
		{"bad interface", func(c *Config) { c.Interface = "elastic" }, false},
		{
			"subnet id and filter",
			func(c *Config) {
				c.SubnetID = "subnet-123"
				c.SubnetFilter = &TagFilter{Tag: "Name", Value: "kitchen"}
			},
			false,
		},
		{
			"security group ids and filter",
			func(c *Config) {
				c.SecurityGroupIDs = []string{"sg-123"}
				c.SecurityGroupFilter = &TagFilter{Tag: "Name", Value: "kitchen"}
			},
			false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfigValidation)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
region: eu-west-1
platform: centos-7
instance_type: m5.large
spot_price: "0.05"
subnet_filter:
  tag: Name
  value: kitchen-subnet
tags:
  project: kitchen
retryable_tries: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "centos-7", cfg.Platform)
	assert.Equal(t, "m5.large", cfg.InstanceType)
	assert.Equal(t, "0.05", cfg.SpotPrice)
	require.NotNil(t, cfg.SubnetFilter)
	assert.Equal(t, "kitchen-subnet", cfg.SubnetFilter.Value)
	assert.Equal(t, 10, cfg.RetryableTries)
	// Defaults still fill the gaps.
	assert.Equal(t, 5, cfg.RetryableSleep)
	assert.Equal(t, map[string]string{"project": "kitchen"}, cfg.Tags)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subnet_id: subnet-123
subnet_filter:
  tag: Name
  value: kitchen-subnet
`), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigValidation)
}
