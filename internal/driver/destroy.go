package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/retry"
)

var ErrTerminate = errors.New("failed to terminate instance")

// Destroy tears down the instance and every resource this driver created
// for it. It tolerates partial state: a state carrying only an auto
// security group id still gets that group deleted, and an instance that
// already vanished is not an error. Auto-resource cleanup runs even when
// termination fails.
func (d *Driver) Destroy(ctx context.Context, state *State) error {
	log := clog.FromContext(ctx)
	var errs []error

	if state.ServerID != "" {
		if state.Hostname != "" {
			if err := d.transport.Close(ctx, state.Hostname); err != nil {
				log.Debug("transport close failed", "hostname", state.Hostname, "error", err)
			}
		}
		_, err := d.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: []string{state.ServerID},
		})
		switch {
		case err == nil, retry.IsCode(err, "InvalidInstanceID.NotFound"):
			log.Info("terminated instance", "server_id", state.ServerID)
			// The security group cannot be deleted while the instance still
			// holds a network interface in it.
			if state.AutoSecurityGroupID != "" {
				if werr := d.waitTerminated(ctx, state.ServerID); werr != nil {
					log.Warn("instance did not finish terminating", "server_id", state.ServerID, "error", werr)
				}
			}
			state.ServerID = ""
			state.Hostname = ""
			state.Password = ""
		default:
			errs = append(errs, fmt.Errorf("%w: %w", ErrTerminate, err))
		}
	}

	if state.SpotRequestID != "" {
		if err := d.cancelSpotRequest(ctx, state.SpotRequestID); err != nil {
			log.Error("failed to cancel spot request", "spot_request_id", state.SpotRequestID, "error", err)
			errs = append(errs, err)
		} else {
			log.Info("cancelled spot request", "spot_request_id", state.SpotRequestID)
			state.SpotRequestID = ""
		}
	}

	d.cleanupOwned(ctx, state)
	return errors.Join(errs...)
}

func (d *Driver) waitTerminated(ctx context.Context, instanceID string) error {
	return d.waiter(waitProgress("instance to terminate")).Wait(ctx, "instance to terminate", func(ctx context.Context) (bool, error) {
		inst, err := d.describeInstance(ctx, instanceID)
		if err != nil {
			if retry.IsCode(err, "InvalidInstanceID.NotFound") {
				return true, nil
			}
			return false, err
		}
		if inst == nil || inst.State == nil {
			return true, nil
		}
		return inst.State.Name == types.InstanceStateNameTerminated, nil
	})
}
