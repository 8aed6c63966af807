// client builds AWS SDK clients from explicit options. Nothing here
// mutates process-wide SDK state; every component that talks to AWS
// receives a client built by this package.
package client

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

var ErrLoadConfig = errors.New("failed to load AWS configuration")

type options struct {
	region  string
	profile string
}

// Option customizes client construction.
type Option func(*options)

// WithRegion pins the client to a region.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithProfile selects a shared-credentials profile.
func WithProfile(profile string) Option {
	return func(o *options) {
		o.profile = profile
	}
}

// NewEC2 builds an EC2 client for the given options.
func NewEC2(ctx context.Context, opts ...Option) (*ec2.Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.region))
	}
	if o.profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(o.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	return ec2.NewFromConfig(cfg), nil
}
