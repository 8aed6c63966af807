package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/retry"
)

var (
	ErrSpotRequest = errors.New("failed to request spot instance")
	ErrSpotFailed  = errors.New("spot request entered a terminal state without an instance")
	ErrSpotCancel  = errors.New("failed to cancel spot request")
)

// submitSpot submits a bid-priced request assembled from the same payload
// as an on-demand launch, records the request id on state, then polls
// until AWS fulfills it with a concrete instance. A poll timeout tears the
// attempt down like any other readiness timeout.
func (d *Driver) submitSpot(ctx context.Context, state *State, in *ec2.RunInstancesInput) (string, error) {
	log := clog.FromContext(ctx)

	spec := spotLaunchSpec(in)
	out, err := d.api.RequestSpotInstances(ctx, &ec2.RequestSpotInstancesInput{
		SpotPrice:           aws.String(d.cfg.SpotPrice),
		InstanceCount:       aws.Int32(1),
		LaunchSpecification: spec,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSpotRequest, err)
	}
	if len(out.SpotInstanceRequests) == 0 {
		return "", ErrSpotRequest
	}
	requestID := aws.ToString(out.SpotInstanceRequests[0].SpotInstanceRequestId)
	state.SpotRequestID = requestID
	log.Info("submitted spot request", "spot_request_id", requestID, "price", d.cfg.SpotPrice)

	var instanceID string
	err = d.waitWithDestroy(ctx, state, "spot request fulfillment", func(ctx context.Context) (bool, error) {
		resp, err := d.api.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{
			SpotInstanceRequestIds: []string{requestID},
		})
		if err != nil {
			// The request can 404 briefly right after submission.
			if retry.IsCode(err, "InvalidSpotInstanceRequestID.NotFound") {
				return false, nil
			}
			return false, err
		}
		if len(resp.SpotInstanceRequests) == 0 {
			return false, nil
		}
		req := resp.SpotInstanceRequests[0]
		switch req.State {
		case types.SpotInstanceStateFailed, types.SpotInstanceStateCancelled, types.SpotInstanceStateClosed:
			return false, fmt.Errorf("%w: state %s", ErrSpotFailed, req.State)
		}
		if req.InstanceId != nil {
			instanceID = aws.ToString(req.InstanceId)
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	log.Info("spot request fulfilled", "spot_request_id", requestID, "instance_id", instanceID)
	return instanceID, nil
}

func (d *Driver) cancelSpotRequest(ctx context.Context, requestID string) error {
	_, err := d.api.CancelSpotInstanceRequests(ctx, &ec2.CancelSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []string{requestID},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpotCancel, err)
	}
	return nil
}

// spotLaunchSpec reshapes an on-demand payload into the spot request's
// launch specification. The spot shape carries the same fields under a
// different struct, including the network-interface migration done by the
// request builder.
func spotLaunchSpec(in *ec2.RunInstancesInput) *types.RequestSpotLaunchSpecification {
	spec := &types.RequestSpotLaunchSpecification{
		ImageId:             in.ImageId,
		InstanceType:        in.InstanceType,
		KeyName:             in.KeyName,
		SubnetId:            in.SubnetId,
		SecurityGroupIds:    in.SecurityGroupIds,
		UserData:            in.UserData,
		IamInstanceProfile:  in.IamInstanceProfile,
		BlockDeviceMappings: in.BlockDeviceMappings,
		NetworkInterfaces:   in.NetworkInterfaces,
	}
	if in.Placement != nil {
		spec.Placement = &types.SpotPlacement{
			AvailabilityZone: in.Placement.AvailabilityZone,
			Tenancy:          in.Placement.Tenancy,
		}
	}
	return spec
}
