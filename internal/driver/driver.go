// driver implements the instance lifecycle: submit an EC2 instance
// (on-demand or spot), poll it to readiness, tag its resources, fetch
// platform-specific bootstrap data, and tear everything down again,
// including compensating cleanup of auto-created security groups and key
// pairs on any failure.
package driver

import (
	"context"
	"time"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/config"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/image"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/platform"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/request"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/retry"
)

// Transport confirms connectivity to a provisioned instance and closes any
// open connection during teardown. The SSH/WinRM session itself belongs to
// the host harness; the driver only needs reachability.
type Transport interface {
	Confirm(ctx context.Context, hostname string) error
	Close(ctx context.Context, hostname string) error
}

// Driver is the provisioning state machine. One Driver serves one logical
// instance; the host harness may run many drivers in parallel processes,
// each exclusively owning its State.
type Driver struct {
	api       API
	cfg       *config.Config
	catalog   *platform.Catalog
	builder   *request.Builder
	resolver  *image.Resolver
	transport Transport
}

// Option customizes a Driver.
type Option func(*Driver)

// WithTransport replaces the default TCP-reachability transport.
func WithTransport(t Transport) Option {
	return func(d *Driver) {
		d.transport = t
	}
}

// New builds a Driver around an EC2 client and a validated configuration.
func New(api API, cfg *config.Config, opts ...Option) *Driver {
	d := &Driver{
		api:      api,
		cfg:      cfg,
		catalog:  platform.NewCatalog(),
		builder:  &request.Builder{API: api, Config: cfg},
		resolver: &image.Resolver{API: api},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.transport == nil {
		d.transport = &tcpTransport{port: d.loginPort()}
	}
	return d
}

// loginPort is the port the transport confirms: WinRM for Windows
// platforms, SSH otherwise.
func (d *Driver) loginPort() int32 {
	if m, _, ok := d.catalog.FromPlatformString(d.cfg.Platform); ok && m.Family() == "windows" {
		return portWinRM
	}
	return portSSH
}

// waiter builds the polling primitive tuned by the retry configuration.
// The total budget of every wait is RetryableTries * RetryableSleep.
func (d *Driver) waiter(progress func(ctx context.Context, attempt int)) retry.Waiter {
	return retry.Waiter{
		MaxAttempts: d.cfg.RetryableTries,
		Delay:       time.Duration(d.cfg.RetryableSleep) * time.Second,
		Before:      progress,
	}
}
