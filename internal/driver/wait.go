package driver

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/retry"
)

// windowsReadyMarker appears in the EC2 console output once the Windows
// provisioning agent has finished first boot.
const windowsReadyMarker = "Windows is Ready to use"

// waitProgress logs a periodic heartbeat so long waits do not look hung.
func waitProgress(what string) func(context.Context, int) {
	return func(ctx context.Context, attempt int) {
		if attempt > 0 && attempt%12 == 0 {
			clog.FromContext(ctx).Info("still waiting", "for", what, "attempt", attempt)
		}
	}
}

// waitWithDestroy polls like a plain waiter, but on timeout it tears down
// everything this run created before surfacing the timeout. An instance
// that never becomes ready is pure cost, so the budget doubles as a
// cleanup trigger.
func (d *Driver) waitWithDestroy(ctx context.Context, state *State, what string, pred func(context.Context) (bool, error)) error {
	log := clog.FromContext(ctx)
	err := d.waiter(waitProgress(what)).Wait(ctx, what, pred)
	if retry.IsTimeout(err) {
		log.Warn("timed out, destroying instance", "waiting_for", what, "server_id", state.ServerID)
		if derr := d.Destroy(ctx, state); derr != nil {
			log.Error("destroy after timeout failed", "error", derr)
		}
	}
	return err
}

// waitInstanceExists blocks until DescribeInstances can see the instance
// at all. Immediately after RunInstances the id may not have propagated.
func (d *Driver) waitInstanceExists(ctx context.Context, state *State) error {
	return d.waiter(waitProgress("instance to exist")).Wait(ctx, "instance to exist", func(ctx context.Context) (bool, error) {
		resp, err := d.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{state.ServerID},
		})
		if err != nil {
			if retry.IsCode(err, "InvalidInstanceID.NotFound") {
				return false, nil
			}
			return false, err
		}
		return len(resp.Reservations) > 0 && len(resp.Reservations[0].Instances) > 0, nil
	})
}

// waitUntilReady blocks until the instance is running with a reachable
// address and, on Windows, until the console output reports the guest
// finished first boot. The hostname observed on the way is recorded on
// state.
func (d *Driver) waitUntilReady(ctx context.Context, state *State, windows bool) error {
	return d.waitWithDestroy(ctx, state, "instance to be ready", func(ctx context.Context) (bool, error) {
		inst, err := d.describeInstance(ctx, state.ServerID)
		if err != nil {
			return false, err
		}
		if inst == nil || inst.State == nil || inst.State.Name != types.InstanceStateNameRunning {
			return false, nil
		}
		hostname, err := Hostname(*inst, d.cfg.Interface)
		if err != nil {
			return false, err
		}
		if hostname == "" {
			return false, nil
		}
		state.Hostname = hostname
		if windows {
			return d.windowsIsReady(ctx, state.ServerID)
		}
		return true, nil
	})
}

func (d *Driver) describeInstance(ctx context.Context, instanceID string) (*types.Instance, error) {
	resp, err := d.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return nil, nil
	}
	return &resp.Reservations[0].Instances[0], nil
}

func (d *Driver) windowsIsReady(ctx context.Context, instanceID string) (bool, error) {
	out, err := d.api.GetConsoleOutput(ctx, &ec2.GetConsoleOutputInput{
		InstanceId: aws.String(instanceID),
	})
	if err != nil {
		return false, err
	}
	if out.Output == nil {
		return false, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(aws.ToString(out.Output))
	if err != nil {
		// Console output mid-boot can be garbled, keep polling.
		return false, nil
	}
	return strings.Contains(string(decoded), windowsReadyMarker), nil
}
