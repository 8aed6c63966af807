package platform

import (
	"regexp"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// The Fedora project's AWS publishing account.
const ownerFedora = "125523088429"

type fedora struct{}

func (*fedora) Family() string { return "fedora" }

func (*fedora) Aliases() []string { return nil }

func (*fedora) Username(string) string { return "fedora" }

func (*fedora) ImageSearch(p Platform) Search {
	name := "Fedora-Cloud-Base-*"
	if p.Version != "" {
		name = "Fedora-Cloud-Base-" + p.Version + "-*"
	}
	return Search{
		OwnerID:      ownerFedora,
		Names:        []string{name},
		Architecture: p.Architecture,
	}
}

var fedoraNameRE = regexp.MustCompile(`^Fedora-Cloud-Base-(\d+(?:\.\d+)?)`)

func (*fedora) DetectFromImageName(name string) (Platform, bool) {
	m := fedoraNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	return Platform{
		Family:       "fedora",
		Version:      m[1],
		Architecture: archFromImageName(name),
	}, true
}

func (f *fedora) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(f, images, versionFloat)
}
