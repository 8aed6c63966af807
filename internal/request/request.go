// request turns the driver configuration into the wire-shaped instance
// creation payload, resolving by-tag subnet and security group lookups and
// encoding user data along the way.
package request

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/config"
)

var (
	// ErrSubnetNotFound and ErrSecurityGroupNotFound are fatal: a filter
	// the user asked for matched nothing, so the whole provisioning
	// attempt must abort rather than retry.
	ErrSubnetNotFound        = errors.New("no subnet found matching the subnet_filter")
	ErrSecurityGroupNotFound = errors.New("no security group found matching the security_group_filter")

	ErrDescribeSubnets        = errors.New("failed to describe subnets")
	ErrDescribeSecurityGroups = errors.New("failed to describe security groups")
	ErrReadUserData           = errors.New("failed to read user_data file")
)

// API is the slice of the EC2 surface the builder needs for its by-tag
// lookups.
type API interface {
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
}

// Builder assembles RunInstances payloads from a Config. The by-tag
// lookups and the user-data encoding are memoized; everything else is a
// pure function of the config.
type Builder struct {
	API    API
	Config *config.Config

	subnetID         *string
	securityGroupIDs []string
	sgResolved       bool
	userData         *string
}

// ResolveSubnetID returns the subnet to launch into: the explicit
// subnet_id when configured, otherwise the first subnet matching the
// subnet_filter, otherwise empty. A filter that matches nothing is fatal.
func (b *Builder) ResolveSubnetID(ctx context.Context) (string, error) {
	if b.subnetID != nil {
		return *b.subnetID, nil
	}
	if b.Config.SubnetID != "" {
		b.subnetID = aws.String(b.Config.SubnetID)
		return *b.subnetID, nil
	}
	if b.Config.SubnetFilter == nil {
		b.subnetID = aws.String("")
		return "", nil
	}

	out, err := b.API.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{{
			Name:   aws.String("tag:" + b.Config.SubnetFilter.Tag),
			Values: []string{b.Config.SubnetFilter.Value},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDescribeSubnets, err)
	}
	if len(out.Subnets) == 0 {
		return "", fmt.Errorf("%w: tag:%s=%s",
			ErrSubnetNotFound, b.Config.SubnetFilter.Tag, b.Config.SubnetFilter.Value)
	}
	b.subnetID = out.Subnets[0].SubnetId
	clog.FromContext(ctx).Info("resolved subnet from filter", "subnet_id", *b.subnetID)
	return *b.subnetID, nil
}

// ResolveSecurityGroupIDs returns the configured security group ids, or
// every group matching the security_group_filter. A filter that matches
// nothing is fatal.
func (b *Builder) ResolveSecurityGroupIDs(ctx context.Context) ([]string, error) {
	if b.sgResolved {
		return b.securityGroupIDs, nil
	}
	if len(b.Config.SecurityGroupIDs) > 0 {
		b.securityGroupIDs = b.Config.SecurityGroupIDs
		b.sgResolved = true
		return b.securityGroupIDs, nil
	}
	if b.Config.SecurityGroupFilter == nil {
		b.sgResolved = true
		return nil, nil
	}

	out, err := b.API.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{{
			Name:   aws.String("tag:" + b.Config.SecurityGroupFilter.Tag),
			Values: []string{b.Config.SecurityGroupFilter.Value},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescribeSecurityGroups, err)
	}
	if len(out.SecurityGroups) == 0 {
		return nil, fmt.Errorf("%w: tag:%s=%s",
			ErrSecurityGroupNotFound, b.Config.SecurityGroupFilter.Tag, b.Config.SecurityGroupFilter.Value)
	}
	for _, sg := range out.SecurityGroups {
		b.securityGroupIDs = append(b.securityGroupIDs, aws.ToString(sg.GroupId))
	}
	b.sgResolved = true
	clog.FromContext(ctx).Info("resolved security groups from filter", "count", len(b.securityGroupIDs))
	return b.securityGroupIDs, nil
}

// EncodeUserData base64-encodes the configured user data. A value naming
// an existing local file is replaced by that file's contents first.
func (b *Builder) EncodeUserData() (string, error) {
	if b.userData != nil {
		return *b.userData, nil
	}
	raw := b.Config.UserData
	if raw == "" {
		b.userData = aws.String("")
		return "", nil
	}
	if info, err := os.Stat(raw); err == nil && !info.IsDir() {
		data, err := os.ReadFile(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrReadUserData, err)
		}
		raw = string(data)
	}
	b.userData = aws.String(base64.StdEncoding.EncodeToString([]byte(raw)))
	return *b.userData, nil
}

// NormalizeAvailabilityZone expands a single-letter zone into region+letter
// and lowercases the result.
func (b *Builder) NormalizeAvailabilityZone() string {
	az := b.Config.AvailabilityZone
	if az == "" {
		return ""
	}
	if len(az) == 1 {
		az = b.Config.Region + az
	}
	return strings.ToLower(az)
}

// Placement assembles the placement sub-structure; nil when empty.
func (b *Builder) Placement() *types.Placement {
	var p types.Placement
	var set bool
	if b.Config.Tenancy != "" {
		p.Tenancy = types.Tenancy(b.Config.Tenancy)
		set = true
	}
	if az := b.NormalizeAvailabilityZone(); az != "" {
		p.AvailabilityZone = aws.String(az)
		set = true
	}
	if !set {
		return nil
	}
	return &p
}

// Build assembles the full RunInstances payload. When associate_public_ip
// is explicitly configured the API forbids top-level subnet, private IP
// and security group fields alongside a network interface spec, so each of
// the three migrates into the single interface entry; every move is a
// no-op when the underlying field is absent.
func (b *Builder) Build(ctx context.Context, imageID, keyName string) (*ec2.RunInstancesInput, error) {
	subnetID, err := b.ResolveSubnetID(ctx)
	if err != nil {
		return nil, err
	}
	securityGroupIDs, err := b.ResolveSecurityGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	userData, err := b.EncodeUserData()
	if err != nil {
		return nil, err
	}

	in := &ec2.RunInstancesInput{
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		ImageId:      aws.String(imageID),
		InstanceType: types.InstanceType(b.Config.InstanceType),
		Placement:    b.Placement(),
	}
	if keyName != "" {
		in.KeyName = aws.String(keyName)
	}
	if subnetID != "" {
		in.SubnetId = aws.String(subnetID)
	}
	if len(securityGroupIDs) > 0 {
		in.SecurityGroupIds = securityGroupIDs
	}
	if b.Config.PrivateIPAddress != "" {
		in.PrivateIpAddress = aws.String(b.Config.PrivateIPAddress)
	}
	if userData != "" {
		in.UserData = aws.String(userData)
	}
	if b.Config.IAMProfileName != "" {
		in.IamInstanceProfile = &types.IamInstanceProfileSpecification{
			Name: aws.String(b.Config.IAMProfileName),
		}
	}
	if b.Config.ShutdownBehavior != "" {
		in.InstanceInitiatedShutdownBehavior = types.ShutdownBehavior(b.Config.ShutdownBehavior)
	}
	if mappings := blockDeviceMappings(b.Config.BlockDevices); len(mappings) > 0 {
		in.BlockDeviceMappings = mappings
	}

	if b.Config.AssociatePublicIP != nil {
		iface := types.InstanceNetworkInterfaceSpecification{
			DeviceIndex:              aws.Int32(0),
			AssociatePublicIpAddress: b.Config.AssociatePublicIP,
		}
		if in.SubnetId != nil {
			iface.SubnetId = in.SubnetId
			in.SubnetId = nil
		}
		if in.PrivateIpAddress != nil {
			iface.PrivateIpAddress = in.PrivateIpAddress
			in.PrivateIpAddress = nil
		}
		if in.SecurityGroupIds != nil {
			iface.Groups = in.SecurityGroupIds
			in.SecurityGroupIds = nil
		}
		in.NetworkInterfaces = []types.InstanceNetworkInterfaceSpecification{iface}
	}

	return in, nil
}

func blockDeviceMappings(devices []config.BlockDeviceMapping) []types.BlockDeviceMapping {
	var mappings []types.BlockDeviceMapping
	for _, d := range devices {
		ebs := &types.EbsBlockDevice{
			DeleteOnTermination: aws.Bool(d.DeleteOnTermination),
		}
		if d.VolumeType != "" {
			ebs.VolumeType = types.VolumeType(d.VolumeType)
		}
		if d.VolumeSize > 0 {
			ebs.VolumeSize = aws.Int32(d.VolumeSize)
		}
		if d.SnapshotID != "" {
			ebs.SnapshotId = aws.String(d.SnapshotID)
		}
		if d.IOPS > 0 {
			ebs.Iops = aws.Int32(d.IOPS)
		}
		mappings = append(mappings, types.BlockDeviceMapping{
			DeviceName: aws.String(d.DeviceName),
			Ebs:        ebs,
		})
	}
	return mappings
}
