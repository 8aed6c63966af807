package platform

import (
	"regexp"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Canonical's AWS publishing account.
const ownerCanonical = "099720109477"

type ubuntu struct{}

func (*ubuntu) Family() string { return "ubuntu" }

func (*ubuntu) Aliases() []string { return nil }

func (*ubuntu) Username(string) string { return "ubuntu" }

func (*ubuntu) ImageSearch(p Platform) Search {
	name := "ubuntu/images/*/ubuntu-*-*"
	if p.Version != "" {
		name = "ubuntu/images/*/ubuntu-*-" + p.Version + "*"
	}
	return Search{
		OwnerID:      ownerCanonical,
		Names:        []string{name},
		Architecture: p.Architecture,
	}
}

// Matches e.g. "ubuntu/images/hvm-ssd/ubuntu-focal-20.04-amd64-server-20210429".
var ubuntuNameRE = regexp.MustCompile(`ubuntu-[a-z]+-(\d+\.\d+)`)

func (*ubuntu) DetectFromImageName(name string) (Platform, bool) {
	m := ubuntuNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	return Platform{
		Family:       "ubuntu",
		Version:      m[1],
		Architecture: archFromImageName(name),
	}, true
}

func (u *ubuntu) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(u, images, versionFloat)
}
