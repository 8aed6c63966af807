package request

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/config"
)

type mockNetworkAPI struct {
	describeSubnetsFunc        func(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	describeSecurityGroupsFunc func(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)

	subnetCalls int
	sgCalls     int
}

func (m *mockNetworkAPI) DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	m.subnetCalls++
	if m.describeSubnetsFunc != nil {
		return m.describeSubnetsFunc(ctx, params, optFns...)
	}
	return &ec2.DescribeSubnetsOutput{}, nil
}

func (m *mockNetworkAPI) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	m.sgCalls++
	if m.describeSecurityGroupsFunc != nil {
		return m.describeSecurityGroupsFunc(ctx, params, optFns...)
	}
	return &ec2.DescribeSecurityGroupsOutput{}, nil
}

func builderFor(cfg *config.Config, api *mockNetworkAPI) *Builder {
	cfg.ApplyDefaults()
	return &Builder{API: api, Config: cfg}
}

func TestResolveSubnetIDNoConfig(t *testing.T) {
	api := &mockNetworkAPI{}
	b := builderFor(&config.Config{}, api)

	id, err := b.ResolveSubnetID(t.Context())
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Zero(t, api.subnetCalls)

	in, err := b.Build(t.Context(), "ami-123", "")
	require.NoError(t, err)
	assert.Nil(t, in.SubnetId)
}

func TestResolveSubnetIDByFilterIsMemoized(t *testing.T) {
	api := &mockNetworkAPI{
		describeSubnetsFunc: func(_ context.Context, params *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
			require.Len(t, params.Filters, 1)
			assert.Equal(t, "tag:Name", aws.ToString(params.Filters[0].Name))
			return &ec2.DescribeSubnetsOutput{
				Subnets: []types.Subnet{{SubnetId: aws.String("subnet-abc")}},
			}, nil
		},
	}
	b := builderFor(&config.Config{
		SubnetFilter: &config.TagFilter{Tag: "Name", Value: "kitchen"},
	}, api)

	for range 3 {
		id, err := b.ResolveSubnetID(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "subnet-abc", id)
	}
	assert.Equal(t, 1, api.subnetCalls)
}

func TestResolveSubnetIDFilterMissIsFatal(t *testing.T) {
	b := builderFor(&config.Config{
		SubnetFilter: &config.TagFilter{Tag: "Name", Value: "nope"},
	}, &mockNetworkAPI{})

	_, err := b.ResolveSubnetID(t.Context())
	require.ErrorIs(t, err, ErrSubnetNotFound)
}

func TestResolveSecurityGroupIDsByFilter(t *testing.T) {
	api := &mockNetworkAPI{
		describeSecurityGroupsFunc: func(context.Context, *ec2.DescribeSecurityGroupsInput, ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
			return &ec2.DescribeSecurityGroupsOutput{
				SecurityGroups: []types.SecurityGroup{
					{GroupId: aws.String("sg-1")},
					{GroupId: aws.String("sg-2")},
				},
			}, nil
		},
	}
	b := builderFor(&config.Config{
		SecurityGroupFilter: &config.TagFilter{Tag: "Name", Value: "kitchen"},
	}, api)

	ids, err := b.ResolveSecurityGroupIDs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"sg-1", "sg-2"}, ids)

	_, err = b.ResolveSecurityGroupIDs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, api.sgCalls)
}

func TestResolveSecurityGroupIDsFilterMissIsFatal(t *testing.T) {
	b := builderFor(&config.Config{
		SecurityGroupFilter: &config.TagFilter{Tag: "Name", Value: "nope"},
	}, &mockNetworkAPI{})

	_, err := b.ResolveSecurityGroupIDs(t.Context())
	require.ErrorIs(t, err, ErrSecurityGroupNotFound)
}

func TestEncodeUserDataLiteral(t *testing.T) {
	b := builderFor(&config.Config{UserData: "#!/bin/sh\necho hi\n"}, &mockNetworkAPI{})
	encoded, err := b.EncodeUserData()
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("#!/bin/sh\necho hi\n")), encoded)
}

func TestEncodeUserDataFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ntouch /tmp/ready\n"), 0o644))

	b := builderFor(&config.Config{UserData: path}, &mockNetworkAPI{})
	encoded, err := b.EncodeUserData()
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("#!/bin/sh\ntouch /tmp/ready\n")), encoded)
}

func TestNormalizeAvailabilityZone(t *testing.T) {
	tests := []struct {
		region string
		az     string
		want   string
	}{
		{"eu-east-1", "c", "eu-east-1c"},
		{"us-west-2", "US-WEST-2A", "us-west-2a"},
		{"us-west-2", "", ""},
	}
	for _, tc := range tests {
		b := builderFor(&config.Config{Region: tc.region, AvailabilityZone: tc.az}, &mockNetworkAPI{})
		assert.Equal(t, tc.want, b.NormalizeAvailabilityZone())
	}
}

func TestPlacementOmittedWhenEmpty(t *testing.T) {
	b := builderFor(&config.Config{}, &mockNetworkAPI{})
	assert.Nil(t, b.Placement())

	b = builderFor(&config.Config{Tenancy: "dedicated"}, &mockNetworkAPI{})
	p := b.Placement()
	require.NotNil(t, p)
	assert.Equal(t, types.TenancyDedicated, p.Tenancy)
}

func TestBuildBasics(t *testing.T) {
	b := builderFor(&config.Config{
		InstanceType:     "m5.large",
		SubnetID:         "subnet-123",
		SecurityGroupIDs: []string{"sg-123"},
		ShutdownBehavior: "terminate",
	}, &mockNetworkAPI{})

	in, err := b.Build(t.Context(), "ami-456", "kitchen-key")
	require.NoError(t, err)
	assert.Equal(t, "ami-456", aws.ToString(in.ImageId))
	assert.Equal(t, types.InstanceType("m5.large"), in.InstanceType)
	assert.Equal(t, "kitchen-key", aws.ToString(in.KeyName))
	assert.Equal(t, "subnet-123", aws.ToString(in.SubnetId))
	assert.Equal(t, []string{"sg-123"}, in.SecurityGroupIds)
	assert.Equal(t, types.ShutdownBehaviorTerminate, in.InstanceInitiatedShutdownBehavior)
	assert.Empty(t, in.NetworkInterfaces)
	assert.Nil(t, in.BlockDeviceMappings)
}

func TestBuildMigratesFieldsIntoNetworkInterface(t *testing.T) {
	b := builderFor(&config.Config{
		SubnetID:          "subnet-123",
		SecurityGroupIDs:  []string{"sg-123"},
		PrivateIPAddress:  "10.0.0.5",
		AssociatePublicIP: aws.Bool(true),
	}, &mockNetworkAPI{})

	in, err := b.Build(t.Context(), "ami-456", "")
	require.NoError(t, err)

	// Top-level fields must not coexist with the interface spec.
	assert.Nil(t, in.SubnetId)
	assert.Nil(t, in.PrivateIpAddress)
	assert.Nil(t, in.SecurityGroupIds)

	require.Len(t, in.NetworkInterfaces, 1)
	iface := in.NetworkInterfaces[0]
	assert.Equal(t, int32(0), aws.ToInt32(iface.DeviceIndex))
	assert.True(t, aws.ToBool(iface.AssociatePublicIpAddress))
	assert.Equal(t, "subnet-123", aws.ToString(iface.SubnetId))
	assert.Equal(t, "10.0.0.5", aws.ToString(iface.PrivateIpAddress))
	assert.Equal(t, []string{"sg-123"}, iface.Groups)
}

func TestBuildMigrationSkipsAbsentFields(t *testing.T) {
	b := builderFor(&config.Config{
		AssociatePublicIP: aws.Bool(false),
	}, &mockNetworkAPI{})

	in, err := b.Build(t.Context(), "ami-456", "")
	require.NoError(t, err)
	require.Len(t, in.NetworkInterfaces, 1)
	iface := in.NetworkInterfaces[0]
	assert.False(t, aws.ToBool(iface.AssociatePublicIpAddress))
	assert.Nil(t, iface.SubnetId)
	assert.Nil(t, iface.PrivateIpAddress)
	assert.Nil(t, iface.Groups)
}

func TestBuildBlockDeviceMappings(t *testing.T) {
	b := builderFor(&config.Config{
		BlockDevices: []config.BlockDeviceMapping{{
			DeviceName:          "/dev/sda1",
			VolumeType:          "gp2",
			VolumeSize:          50,
			DeleteOnTermination: true,
		}},
	}, &mockNetworkAPI{})

	in, err := b.Build(t.Context(), "ami-456", "")
	require.NoError(t, err)
	require.Len(t, in.BlockDeviceMappings, 1)
	bdm := in.BlockDeviceMappings[0]
	assert.Equal(t, "/dev/sda1", aws.ToString(bdm.DeviceName))
	require.NotNil(t, bdm.Ebs)
	assert.Equal(t, types.VolumeTypeGp2, bdm.Ebs.VolumeType)
	assert.Equal(t, int32(50), aws.ToInt32(bdm.Ebs.VolumeSize))
	assert.True(t, aws.ToBool(bdm.Ebs.DeleteOnTermination))
}
