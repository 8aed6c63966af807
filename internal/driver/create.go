package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/image"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/platform"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/retry"
)

var (
	ErrNoImageSource = errors.New("no image_id, image_search, or recognized platform configured")
	ErrRunInstances  = errors.New("failed to launch instance")
	ErrTransport     = errors.New("instance never accepted a connection")
)

// freeTierTypes are the instance types the cost warning stays quiet about.
var freeTierTypes = map[string]bool{
	"t2.micro": true,
	"t3.micro": true,
}

// Create provisions the instance described by the configuration and fills
// in state. Calling it again with a state that already carries a server id
// is a no-op, so a crashed run can be resumed safely. On any failure the
// returned error is the original one; resources this run created are torn
// down first.
func (d *Driver) Create(ctx context.Context, state *State) error {
	log := clog.FromContext(ctx)

	if state.ServerID != "" {
		log.Info("instance already exists, skipping create", "server_id", state.ServerID)
		return nil
	}

	if !d.cfg.SkipCostWarning && !freeTierTypes[d.cfg.InstanceType] {
		log.Warn("instance type is not eligible for the AWS free tier; charges apply",
			"instance_type", d.cfg.InstanceType)
	}

	if err := d.create(ctx, state); err != nil {
		d.cleanupOwned(ctx, state)
		return err
	}
	return nil
}

func (d *Driver) create(ctx context.Context, state *State) error {
	log := clog.FromContext(ctx)

	if err := d.ensureSecurityGroup(ctx, state); err != nil {
		return err
	}
	if err := d.ensureKeyPair(ctx, state); err != nil {
		return err
	}

	imageID, matcher, plat, err := d.resolveImage(ctx)
	if err != nil {
		return err
	}
	windows := matcher != nil && matcher.Family() == "windows"
	state.Username = d.username(matcher, plat)

	in, err := d.builder.Build(ctx, imageID, d.cfg.KeyName)
	if err != nil {
		return err
	}

	var instanceID string
	if d.cfg.SpotPrice != "" {
		instanceID, err = d.submitSpot(ctx, state, in)
	} else {
		instanceID, err = d.runInstance(ctx, in)
	}
	if err != nil {
		return err
	}
	state.ServerID = instanceID
	log.Info("launched instance", "server_id", instanceID)

	if err := d.waitInstanceExists(ctx, state); err != nil {
		return err
	}

	// Tags, volumes, and readiness all describe the brand new instance, so
	// any of them can still see a stale NotFound while the id propagates.
	// The whole block retries as a unit.
	err = retry.Backoff(ctx, 0, func(ctx context.Context) error {
		if err := d.tagInstance(ctx, state.ServerID); err != nil {
			return err
		}
		if err := d.tagVolumes(ctx, state); err != nil {
			return err
		}
		return d.waitUntilReady(ctx, state, windows)
	}, func(err error) bool {
		return retry.IsCode(err, "InvalidInstanceID.NotFound")
	})
	if err != nil {
		return err
	}

	if windows && state.Password == "" {
		if err := d.fetchWindowsPassword(ctx, state); err != nil {
			return err
		}
	}

	budget := time.Duration(d.cfg.RetryableTries*d.cfg.RetryableSleep) * time.Second
	confirmCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	if err := d.transport.Confirm(confirmCtx, state.Hostname); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	log.Info("instance ready", "server_id", state.ServerID, "hostname", state.Hostname)
	return nil
}

func (d *Driver) runInstance(ctx context.Context, in *ec2.RunInstancesInput) (string, error) {
	out, err := d.api.RunInstances(ctx, in)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRunInstances, err)
	}
	if len(out.Instances) == 0 {
		return "", ErrRunInstances
	}
	return aws.ToString(out.Instances[0].InstanceId), nil
}

// username picks the login user recorded on state. An explicit config
// value always wins; otherwise the detected platform family's conventional
// user, falling back to root when no family could be detected.
func (d *Driver) username(matcher platform.Matcher, plat platform.Platform) string {
	if d.cfg.Username != "" {
		return d.cfg.Username
	}
	if matcher != nil {
		return matcher.Username(plat.Version)
	}
	return "root"
}

// resolveImage decides which AMI to launch. Precedence is an explicit
// image_id, then raw image_search filters, then the platform catalog's
// standard search. The returned matcher describes the actual platform of
// the chosen image: the platform string's family when recognized, else the
// family detected from the image's name. It drives the login username and
// the Windows readiness/password handling; nil means no family is known.
func (d *Driver) resolveImage(ctx context.Context) (string, platform.Matcher, platform.Platform, error) {
	matcher, plat, known := d.catalog.FromPlatformString(d.cfg.Platform)

	if d.cfg.ImageID != "" {
		if !known {
			matcher, plat = d.detectImagePlatform(ctx, d.cfg.ImageID)
		}
		return d.cfg.ImageID, matcher, plat, nil
	}

	if len(d.cfg.ImageSearch) > 0 {
		var sorter platform.Matcher
		if known {
			sorter = matcher
		}
		id, err := d.resolver.Resolve(ctx, rawFilters(d.cfg.ImageSearch), sorter)
		if err != nil {
			return "", nil, platform.Platform{}, err
		}
		if !known {
			matcher, plat = d.detectImagePlatform(ctx, id)
		}
		return id, matcher, plat, nil
	}

	if !known {
		return "", nil, platform.Platform{}, fmt.Errorf("%w: platform %q", ErrNoImageSource, d.cfg.Platform)
	}
	id, err := d.resolver.Resolve(ctx, image.FiltersFromSearch(matcher.ImageSearch(plat)), matcher)
	if err != nil {
		return "", nil, platform.Platform{}, err
	}
	return id, matcher, plat, nil
}

// detectImagePlatform inspects the image name when the platform string did
// not already settle the family. Lookup failures yield no detection; the
// launch itself will surface a bad image id.
func (d *Driver) detectImagePlatform(ctx context.Context, imageID string) (platform.Matcher, platform.Platform) {
	out, err := d.api.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil || len(out.Images) == 0 {
		return nil, platform.Platform{}
	}
	m, p, ok := d.catalog.DetectFromImageName(aws.ToString(out.Images[0].Name))
	if !ok {
		return nil, platform.Platform{}
	}
	return m, p
}

func rawFilters(search map[string][]string) []types.Filter {
	names := make([]string, 0, len(search))
	for name := range search {
		names = append(names, name)
	}
	sort.Strings(names)
	filters := make([]types.Filter, 0, len(names))
	for _, name := range names {
		filters = append(filters, types.Filter{Name: aws.String(name), Values: search[name]})
	}
	return filters
}
