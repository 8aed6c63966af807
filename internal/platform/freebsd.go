package platform

import (
	"regexp"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// The FreeBSD release engineering AWS account.
const ownerFreeBSD = "118940168514"

type freebsd struct{}

func (*freebsd) Family() string { return "freebsd" }

func (*freebsd) Aliases() []string { return nil }

func (*freebsd) Username(string) string { return "ec2-user" }

func (*freebsd) ImageSearch(p Platform) Search {
	version := p.Version
	if version == "" {
		version = "*"
	}
	return Search{
		OwnerID: ownerFreeBSD,
		Names: []string{
			"FreeBSD " + version + "*-RELEASE*",
			"FreeBSD/EC2 " + version + "*-RELEASE*",
		},
		Architecture: p.Architecture,
	}
}

var freebsdNameRE = regexp.MustCompile(`^FreeBSD[/ ](?:EC2 )?(\d+(?:\.\d+)?)[^ ]*-RELEASE`)

func (*freebsd) DetectFromImageName(name string) (Platform, bool) {
	m := freebsdNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	return Platform{
		Family:       "freebsd",
		Version:      m[1],
		Architecture: archFromImageName(name),
	}, true
}

func (f *freebsd) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(f, images, versionFloat)
}
