// image resolves an image search to the single best candidate AMI.
package image

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/platform"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/retry"
)

// ErrNoImagesFound is returned when the search matched nothing. It is a
// configuration-class error: the caller should surface it to the user, not
// retry it.
var ErrNoImagesFound = errors.New("no images found matching the search criteria")

var ErrDescribeImages = errors.New("failed to describe images")

// API is the slice of the EC2 surface the resolver needs.
type API interface {
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// Resolver picks the best image for a search filter.
type Resolver struct {
	API API

	// BackoffTries bounds the throttling retry around DescribeImages.
	// Zero means retry.DefaultBackoffTries.
	BackoffTries int
}

// FiltersFromSearch converts a platform image search into EC2 describe
// filters.
func FiltersFromSearch(s platform.Search) []types.Filter {
	var filters []types.Filter
	if s.OwnerID != "" {
		filters = append(filters, types.Filter{Name: aws.String("owner-id"), Values: []string{s.OwnerID}})
	}
	if s.OwnerAlias != "" {
		filters = append(filters, types.Filter{Name: aws.String("owner-alias"), Values: []string{s.OwnerAlias}})
	}
	if len(s.Names) > 0 {
		filters = append(filters, types.Filter{Name: aws.String("name"), Values: s.Names})
	}
	if s.Architecture != "" {
		filters = append(filters, types.Filter{Name: aws.String("architecture"), Values: []string{s.Architecture}})
	}
	return filters
}

// Resolve queries images matching filters and returns the winning image id.
// sorter, when non-nil, supplies the family version ordering applied as the
// dominant sort key; pass nil for searches with no known platform family.
//
// The preference ordering is fixed: newest creation date, then x86_64, then
// gp2 root volumes, then EBS root devices, then HVM, and finally the family
// version ordering. Every step is a stable reorder, so the result is
// deterministic for a given candidate set regardless of input order.
func (r *Resolver) Resolve(ctx context.Context, filters []types.Filter, sorter platform.Matcher) (string, error) {
	log := clog.FromContext(ctx)

	var images []types.Image
	err := retry.Backoff(ctx, r.BackoffTries, func(ctx context.Context) error {
		out, err := r.API.DescribeImages(ctx, &ec2.DescribeImagesInput{Filters: filters})
		if err != nil {
			return err
		}
		images = out.Images
		return nil
	}, func(err error) bool {
		return retry.IsCode(err, "RequestLimitExceeded")
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDescribeImages, err)
	}
	if len(images) == 0 {
		return "", ErrNoImagesFound
	}
	log.Debug("image search complete", "candidates", len(images))

	images = prefer(images)
	if sorter != nil {
		images = sorter.SortByVersion(images)
	}

	winner := images[0]
	log.Info("resolved image",
		"image_id", aws.ToString(winner.ImageId),
		"name", aws.ToString(winner.Name),
	)
	return aws.ToString(winner.ImageId), nil
}

// prefer applies the creation-date sort and the four stable partitions.
func prefer(images []types.Image) []types.Image {
	sort.SliceStable(images, func(i, j int) bool {
		// ISO 8601 creation dates order lexically.
		return aws.ToString(images[i].CreationDate) > aws.ToString(images[j].CreationDate)
	})
	images = partition(images, func(img types.Image) bool {
		return img.Architecture == types.ArchitectureValuesX8664
	})
	images = partition(images, hasGP2Root)
	images = partition(images, func(img types.Image) bool {
		return img.RootDeviceType == types.DeviceTypeEbs
	})
	images = partition(images, func(img types.Image) bool {
		return img.VirtualizationType == types.VirtualizationTypeHvm
	})
	return images
}

// partition stably moves images matching pred ahead of the rest.
func partition(images []types.Image, pred func(types.Image) bool) []types.Image {
	out := make([]types.Image, 0, len(images))
	var rest []types.Image
	for _, img := range images {
		if pred(img) {
			out = append(out, img)
		} else {
			rest = append(rest, img)
		}
	}
	return append(out, rest...)
}

func hasGP2Root(img types.Image) bool {
	root := aws.ToString(img.RootDeviceName)
	for _, bdm := range img.BlockDeviceMappings {
		if aws.ToString(bdm.DeviceName) != root {
			continue
		}
		return bdm.Ebs != nil && bdm.Ebs.VolumeType == types.VolumeTypeGp2
	}
	return false
}
