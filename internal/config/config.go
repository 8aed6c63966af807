// config holds the driver's configuration surface: the named options the
// harness supplies, their defaults, and load-time validation. Invalid
// combinations are fatal here, before any remote call is made.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

var (
	ErrConfigRead       = errors.New("failed to read config file")
	ErrConfigDecode     = errors.New("failed to decode config file")
	ErrConfigValidation = errors.New("invalid configuration")
)

// TagFilter selects resources by a single tag key/value pair.
type TagFilter struct {
	Tag   string `mapstructure:"tag" yaml:"tag"`
	Value string `mapstructure:"value" yaml:"value"`
}

// BlockDeviceMapping mirrors the EC2 block device mapping shape.
type BlockDeviceMapping struct {
	DeviceName          string `mapstructure:"device_name" yaml:"device_name"`
	VolumeType          string `mapstructure:"volume_type" yaml:"volume_type"`
	VolumeSize          int32  `mapstructure:"volume_size" yaml:"volume_size"`
	DeleteOnTermination bool   `mapstructure:"delete_on_termination" yaml:"delete_on_termination"`
	SnapshotID          string `mapstructure:"snapshot_id" yaml:"snapshot_id"`
	IOPS                int32  `mapstructure:"iops" yaml:"iops"`
}

// Config is the full option surface. It is read-only for the duration of a
// create or destroy call; the request builder memoizes a few resolved
// lookups separately.
type Config struct {
	// Placement
	Region           string `mapstructure:"region" yaml:"region"`
	Profile          string `mapstructure:"profile" yaml:"profile"`
	AvailabilityZone string `mapstructure:"availability_zone" yaml:"availability_zone"`
	Tenancy          string `mapstructure:"tenancy" yaml:"tenancy"`

	// Image selection. ImageID wins; otherwise ImageSearch, otherwise the
	// platform string drives the standard platform catalog.
	ImageID     string              `mapstructure:"image_id" yaml:"image_id"`
	ImageSearch map[string][]string `mapstructure:"image_search" yaml:"image_search"`
	Platform    string              `mapstructure:"platform" yaml:"platform"`

	// Sizing
	InstanceType string `mapstructure:"instance_type" yaml:"instance_type"`

	// Network
	SubnetID            string     `mapstructure:"subnet_id" yaml:"subnet_id"`
	SubnetFilter        *TagFilter `mapstructure:"subnet_filter" yaml:"subnet_filter"`
	SecurityGroupIDs    []string   `mapstructure:"security_group_ids" yaml:"security_group_ids"`
	SecurityGroupFilter *TagFilter `mapstructure:"security_group_filter" yaml:"security_group_filter"`
	SecurityGroupCIDRIP string     `mapstructure:"security_group_cidr_ip" yaml:"security_group_cidr_ip"`
	AssociatePublicIP   *bool      `mapstructure:"associate_public_ip" yaml:"associate_public_ip"`
	PrivateIPAddress    string     `mapstructure:"private_ip_address" yaml:"private_ip_address"`
	Interface           string     `mapstructure:"interface" yaml:"interface"`

	// Credentials and login
	KeyName        string `mapstructure:"aws_ssh_key_id" yaml:"aws_ssh_key_id"`
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path"`
	Username       string `mapstructure:"username" yaml:"username"`

	// Instance behavior
	UserData         string               `mapstructure:"user_data" yaml:"user_data"`
	IAMProfileName   string               `mapstructure:"iam_profile_name" yaml:"iam_profile_name"`
	ShutdownBehavior string               `mapstructure:"instance_initiated_shutdown_behavior" yaml:"instance_initiated_shutdown_behavior"`
	BlockDevices     []BlockDeviceMapping `mapstructure:"block_device_mappings" yaml:"block_device_mappings"`
	Tags             map[string]string    `mapstructure:"tags" yaml:"tags"`

	// Cost controls
	SpotPrice       string `mapstructure:"spot_price" yaml:"spot_price"`
	SkipCostWarning bool   `mapstructure:"skip_cost_warning" yaml:"skip_cost_warning"`

	// Retry tuning. The total wait budget of every polling loop is
	// RetryableTries * RetryableSleep seconds.
	RetryableTries int `mapstructure:"retryable_tries" yaml:"retryable_tries"`
	RetryableSleep int `mapstructure:"retryable_sleep" yaml:"retryable_sleep"`

	// Harness bookkeeping
	KitchenRoot  string `mapstructure:"kitchen_root" yaml:"kitchen_root"`
	InstanceName string `mapstructure:"instance_name" yaml:"instance_name"`
}

// Load reads a YAML config file, applies defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigDecode, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.InstanceType == "" {
		c.InstanceType = "t3.micro"
	}
	if c.SecurityGroupCIDRIP == "" {
		c.SecurityGroupCIDRIP = "0.0.0.0/0"
	}
	if c.RetryableTries == 0 {
		c.RetryableTries = 60
	}
	if c.RetryableSleep == 0 {
		c.RetryableSleep = 5
	}
	if c.Tags == nil {
		c.Tags = map[string]string{"created-by": "test-kitchen"}
	}
	if c.KitchenRoot == "" {
		c.KitchenRoot = "."
	}
}

// Validate enforces enum values and mutual exclusions. Failures here are
// configuration errors: fatal, never retried.
func (c *Config) Validate() error {
	switch c.Tenancy {
	case "", "default", "dedicated":
	default:
		return fmt.Errorf("%w: tenancy must be 'default' or 'dedicated', got %q", ErrConfigValidation, c.Tenancy)
	}
	switch c.ShutdownBehavior {
	case "", "stop", "terminate":
	default:
		return fmt.Errorf(
			"%w: instance_initiated_shutdown_behavior must be 'stop' or 'terminate', got %q",
			ErrConfigValidation, c.ShutdownBehavior,
		)
	}
	switch c.Interface {
	case "", "dns", "public", "private", "private_dns":
	default:
		return fmt.Errorf(
			"%w: interface must be one of 'dns', 'public', 'private', 'private_dns', got %q",
			ErrConfigValidation, c.Interface,
		)
	}
	if c.SubnetID != "" && c.SubnetFilter != nil {
		return fmt.Errorf("%w: subnet_id and subnet_filter are mutually exclusive", ErrConfigValidation)
	}
	if len(c.SecurityGroupIDs) > 0 && c.SecurityGroupFilter != nil {
		return fmt.Errorf("%w: security_group_ids and security_group_filter are mutually exclusive", ErrConfigValidation)
	}
	return nil
}
