package platform

import (
	"regexp"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Amazon Linux images are published by the Amazon-owned account below.
const ownerAmazonLinux = "137112412989"

type amazon struct{}

func (*amazon) Family() string { return "amazon" }

func (*amazon) Aliases() []string { return nil }

func (*amazon) Username(string) string { return "ec2-user" }

func (*amazon) ImageSearch(p Platform) Search {
	name := "amzn-ami-hvm-*"
	if p.Version != "" {
		name = "amzn-ami-hvm-" + p.Version + "*"
	}
	return Search{
		OwnerID:      ownerAmazonLinux,
		Names:        []string{name},
		Architecture: p.Architecture,
	}
}

var amazonNameRE = regexp.MustCompile(`^amzn-ami-hvm-([\d.]+)`)

func (*amazon) DetectFromImageName(name string) (Platform, bool) {
	m := amazonNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	return Platform{
		Family:       "amazon",
		Version:      m[1],
		Architecture: archFromImageName(name),
	}, true
}

func (a *amazon) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(a, images, versionFloat)
}

type amazon2 struct{}

func (*amazon2) Family() string { return "amazon2" }

func (*amazon2) Aliases() []string { return nil }

func (*amazon2) Username(string) string { return "ec2-user" }

func (*amazon2) ImageSearch(p Platform) Search {
	return Search{
		OwnerID:      ownerAmazonLinux,
		Names:        []string{"amzn2-ami-hvm-2*"},
		Architecture: p.Architecture,
	}
}

var amazon2NameRE = regexp.MustCompile(`^amzn2-ami-hvm-(2[\d.]*)`)

func (*amazon2) DetectFromImageName(name string) (Platform, bool) {
	m := amazon2NameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	return Platform{
		Family:       "amazon2",
		Version:      m[1],
		Architecture: archFromImageName(name),
	}, true
}

func (a *amazon2) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(a, images, versionFloat)
}
