package platform

import (
	"regexp"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// The Debian project's AWS publishing account.
const ownerDebian = "379101102735"

// Debian cloud images are named by codename, not release number.
var debianCodenames = map[string]string{
	"12": "bookworm",
	"11": "bullseye",
	"10": "buster",
	"9":  "stretch",
	"8":  "jessie",
	"7":  "wheezy",
	"6":  "squeeze",
}

var debianReleases = func() map[string]string {
	m := make(map[string]string, len(debianCodenames))
	for release, codename := range debianCodenames {
		m[codename] = release
	}
	return m
}()

type debian struct{}

func (*debian) Family() string { return "debian" }

func (*debian) Aliases() []string { return nil }

func (*debian) Username(string) string { return "admin" }

func (*debian) ImageSearch(p Platform) Search {
	name := "debian-*"
	if p.Version != "" {
		version := p.Version
		if codename, ok := debianCodenames[version]; ok {
			version = codename
		}
		name = "debian-" + version + "-*"
	}
	return Search{
		OwnerID:      ownerDebian,
		Names:        []string{name},
		Architecture: p.Architecture,
	}
}

var debianNameRE = regexp.MustCompile(`^debian-([a-z]+|\d+(?:\.\d+)?)`)

func (*debian) DetectFromImageName(name string) (Platform, bool) {
	m := debianNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	version := m[1]
	if release, ok := debianReleases[version]; ok {
		version = release
	} else if !isDigits(version) {
		// Unknown codename, no release number to order by.
		version = ""
	}
	return Platform{
		Family:       "debian",
		Version:      version,
		Architecture: archFromImageName(name),
	}, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			if r != '.' {
				return false
			}
		}
	}
	return s != ""
}

func (d *debian) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(d, images, versionFloat)
}
