package image

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/platform"
)

type mockImagesAPI struct {
	describeImagesFunc func(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	calls              int
}

func (m *mockImagesAPI) DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	m.calls++
	return m.describeImagesFunc(ctx, params, optFns...)
}

func ubuntuImage(id, name, created string, mutate ...func(*types.Image)) types.Image {
	img := types.Image{
		ImageId:            aws.String(id),
		Name:               aws.String(name),
		CreationDate:       aws.String(created),
		Architecture:       types.ArchitectureValuesX8664,
		RootDeviceType:     types.DeviceTypeEbs,
		RootDeviceName:     aws.String("/dev/sda1"),
		VirtualizationType: types.VirtualizationTypeHvm,
		BlockDeviceMappings: []types.BlockDeviceMapping{{
			DeviceName: aws.String("/dev/sda1"),
			Ebs:        &types.EbsBlockDevice{VolumeType: types.VolumeTypeGp2},
		}},
	}
	for _, f := range mutate {
		f(&img)
	}
	return img
}

func fixedImages(images ...types.Image) *mockImagesAPI {
	return &mockImagesAPI{
		describeImagesFunc: func(context.Context, *ec2.DescribeImagesInput, ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
			return &ec2.DescribeImagesOutput{Images: images}, nil
		},
	}
}

func TestResolveNoImages(t *testing.T) {
	r := &Resolver{API: fixedImages()}
	_, err := r.Resolve(t.Context(), nil, nil)
	require.ErrorIs(t, err, ErrNoImagesFound)
}

func TestResolvePrefersModernVariant(t *testing.T) {
	legacy := ubuntuImage(
		// Newer by creation date, but paravirtual, instance-store, i386.
		"ami-legacy",
		"ubuntu/images/hvm-ssd/ubuntu-focal-20.04-amd64-server-20210401",
		"2021-04-01T00:00:00.000Z",
		func(img *types.Image) {
			img.Architecture = types.ArchitectureValuesI386
			img.RootDeviceType = types.DeviceTypeInstanceStore
			img.VirtualizationType = types.VirtualizationTypeParavirtual
			img.BlockDeviceMappings = nil
		},
	)
	modern := ubuntuImage(
		"ami-modern",
		"ubuntu/images/hvm-ssd/ubuntu-focal-20.04-amd64-server-20210101",
		"2021-01-01T00:00:00.000Z",
	)

	catalog := platform.NewCatalog()
	sorter, _, ok := catalog.FromPlatformString("ubuntu-20.04")
	require.True(t, ok)

	// Same winner regardless of result order.
	for _, images := range [][]types.Image{
		{legacy, modern},
		{modern, legacy},
	} {
		r := &Resolver{API: fixedImages(images...)}
		id, err := r.Resolve(t.Context(), nil, sorter)
		require.NoError(t, err)
		assert.Equal(t, "ami-modern", id)
	}
}

func TestResolveVersionOrderingDominates(t *testing.T) {
	older := ubuntuImage(
		"ami-older-release",
		"ubuntu/images/hvm-ssd/ubuntu-bionic-18.04-amd64-server-20211201",
		"2021-12-01T00:00:00.000Z",
	)
	newer := ubuntuImage(
		"ami-newer-release",
		"ubuntu/images/hvm-ssd/ubuntu-focal-20.04-amd64-server-20200101",
		"2020-01-01T00:00:00.000Z",
	)

	catalog := platform.NewCatalog()
	sorter, ok := catalog.ForFamily("ubuntu")
	require.True(t, ok)

	r := &Resolver{API: fixedImages(older, newer)}
	id, err := r.Resolve(t.Context(), nil, sorter)
	require.NoError(t, err)
	// 20.04 beats 18.04 even though the 18.04 build is newer.
	assert.Equal(t, "ami-newer-release", id)
}

func TestResolveRetriesThrottling(t *testing.T) {
	images := []types.Image{ubuntuImage(
		"ami-1",
		"ubuntu/images/hvm-ssd/ubuntu-focal-20.04-amd64-server-20210101",
		"2021-01-01T00:00:00.000Z",
	)}
	api := &mockImagesAPI{}
	api.describeImagesFunc = func(context.Context, *ec2.DescribeImagesInput, ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
		if api.calls == 1 {
			return nil, &smithy.GenericAPIError{Code: "RequestLimitExceeded"}
		}
		return &ec2.DescribeImagesOutput{Images: images}, nil
	}

	r := &Resolver{API: api}
	id, err := r.Resolve(t.Context(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ami-1", id)
	assert.Equal(t, 2, api.calls)
}

func TestFiltersFromSearch(t *testing.T) {
	filters := FiltersFromSearch(platform.Search{
		OwnerAlias:   "aws-marketplace",
		Names:        []string{"CentOS Linux 7*", "CentOS-7*-GA-*"},
		Architecture: "x86_64",
	})
	require.Len(t, filters, 3)
	assert.Equal(t, "owner-alias", aws.ToString(filters[0].Name))
	assert.Equal(t, []string{"aws-marketplace"}, filters[0].Values)
	assert.Equal(t, "name", aws.ToString(filters[1].Name))
	assert.Equal(t, []string{"CentOS Linux 7*", "CentOS-7*-GA-*"}, filters[1].Values)
	assert.Equal(t, "architecture", aws.ToString(filters[2].Name))
}
