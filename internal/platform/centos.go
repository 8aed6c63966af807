package platform

import (
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type centos struct{}

func (*centos) Family() string { return "centos" }

func (*centos) Aliases() []string { return nil }

func (*centos) Username(string) string { return "centos" }

// CentOS images live in the AWS Marketplace rather than a single
// first-party account, and the naming scheme changed between major
// releases, hence the two globs.
func (*centos) ImageSearch(p Platform) Search {
	version := p.Version
	if version == "" {
		version = "*"
	}
	return Search{
		OwnerAlias: "aws-marketplace",
		Names: []string{
			"CentOS Linux " + version + "*",
			"CentOS-" + version + "*-GA-*",
		},
		Architecture: p.Architecture,
	}
}

var centosNameRE = regexp.MustCompile(`^CentOS[ -](?:Linux[ -])?(\d+(?:\.\d+)?)`)

func (*centos) DetectFromImageName(name string) (Platform, bool) {
	m := centosNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	return Platform{
		Family:       "centos",
		Version:      m[1],
		Architecture: archFromImageName(name),
	}, true
}

// SortByVersion scores a bare major version as "major.999": marketplace
// images named with only the major ("CentOS Linux 7") are continuously
// refreshed, so they rank ahead of that major's dotted point releases.
func (c *centos) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(c, images, func(version string) float64 {
		if !strings.Contains(version, ".") {
			version += ".999"
		}
		return versionFloat(version)
	})
}
