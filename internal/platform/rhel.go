package platform

import (
	"regexp"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Red Hat's AWS publishing account.
const ownerRedHat = "309956199498"

type rhel struct{}

func (*rhel) Family() string { return "rhel" }

func (*rhel) Aliases() []string { return []string{"el"} }

// Username is "root" on images older than RHEL 6.4, "ec2-user" since.
func (*rhel) Username(version string) string {
	if version != "" && versionFloat(version) < 6.4 {
		return "root"
	}
	return "ec2-user"
}

func (*rhel) ImageSearch(p Platform) Search {
	name := "RHEL-*"
	if p.Version != "" {
		name = "RHEL-" + p.Version + "*"
	}
	return Search{
		OwnerID:      ownerRedHat,
		Names:        []string{name},
		Architecture: p.Architecture,
	}
}

var rhelNameRE = regexp.MustCompile(`^RHEL[-_](\d+(?:\.\d+)?)`)

func (*rhel) DetectFromImageName(name string) (Platform, bool) {
	m := rhelNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	return Platform{
		Family:       "rhel",
		Version:      m[1],
		Architecture: archFromImageName(name),
	}, true
}

func (r *rhel) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(r, images, versionFloat)
}
