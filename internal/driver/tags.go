package driver

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

func (d *Driver) tagSlice() []types.Tag {
	keys := make([]string, 0, len(d.cfg.Tags))
	for k := range d.cfg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(d.cfg.Tags[k])})
	}
	return tags
}

func (d *Driver) tagInstance(ctx context.Context, instanceID string) error {
	tags := d.tagSlice()
	if len(tags) == 0 {
		return nil
	}
	_, err := d.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{instanceID},
		Tags:      tags,
	})
	return err
}

// tagVolumes waits for every volume the instance's block device mappings
// promise to attach, then applies the instance's tag set to each of them.
// Instance-store roots carry no EBS volumes and are skipped outright. The
// mapping list itself lags on a fresh instance, so each poll re-reads it
// and a zero count is treated as not-yet-propagated rather than done.
func (d *Driver) tagVolumes(ctx context.Context, state *State) error {
	log := clog.FromContext(ctx)

	inst, err := d.describeInstance(ctx, state.ServerID)
	if err != nil {
		return err
	}
	if inst == nil || inst.RootDeviceType != types.DeviceTypeEbs {
		return nil
	}

	var volumeIDs []string
	err = d.waitWithDestroy(ctx, state, "volumes to attach", func(ctx context.Context) (bool, error) {
		inst, err := d.describeInstance(ctx, state.ServerID)
		if err != nil {
			return false, err
		}
		if inst == nil {
			return false, nil
		}
		expected := len(inst.BlockDeviceMappings)
		if expected == 0 {
			return false, nil
		}
		resp, err := d.api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
			Filters: []types.Filter{{
				Name:   aws.String("attachment.instance-id"),
				Values: []string{state.ServerID},
			}},
		})
		if err != nil {
			return false, err
		}
		if len(resp.Volumes) < expected {
			return false, nil
		}
		volumeIDs = volumeIDs[:0]
		for _, v := range resp.Volumes {
			volumeIDs = append(volumeIDs, aws.ToString(v.VolumeId))
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	tags := d.tagSlice()
	if len(tags) == 0 || len(volumeIDs) == 0 {
		return nil
	}
	log.Info("tagging volumes", "volumes", volumeIDs)
	_, err = d.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: volumeIDs,
		Tags:      tags,
	})
	return err
}
