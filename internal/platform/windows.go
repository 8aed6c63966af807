package platform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type windows struct{}

func (*windows) Family() string { return "windows" }

func (*windows) Aliases() []string { return nil }

func (*windows) Username(string) string { return "administrator" }

// windowsVersion is the major/revision/service-pack triple behind version
// strings like "2012r2", "2008r2sp1" or "2019". A zero revision or service
// pack means the token was absent (which reads as RTM).
type windowsVersion struct {
	Major       int
	Revision    int
	ServicePack int
}

var windowsVersionRE = regexp.MustCompile(`^(\d+)(?:r(\d+))?(?:sp(\d+)|rtm)?$`)

func parseWindowsVersion(version string) (windowsVersion, bool) {
	m := windowsVersionRE.FindStringSubmatch(strings.ToLower(version))
	if m == nil {
		return windowsVersion{}, false
	}
	var v windowsVersion
	v.Major, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		v.Revision, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		v.ServicePack, _ = strconv.Atoi(m[3])
	}
	return v, true
}

func (v windowsVersion) String() string {
	s := strconv.Itoa(v.Major)
	if v.Revision > 0 {
		s += fmt.Sprintf("r%d", v.Revision)
	}
	if v.ServicePack > 0 {
		s += fmt.Sprintf("sp%d", v.ServicePack)
	}
	return s
}

// ImageSearch builds the Windows Server name glob. Releases from 2016 on
// dropped the revision/service-pack naming, so the glob shape depends on
// the requested major.
func (*windows) ImageSearch(p Platform) Search {
	s := Search{OwnerAlias: "amazon", Architecture: p.Architecture}

	v, ok := parseWindowsVersion(p.Version)
	if !ok {
		s.Names = []string{"Windows_Server-*-English-*-Base-*"}
		return s
	}

	switch {
	case v.Major >= 2016:
		s.Names = []string{fmt.Sprintf("Windows_Server-%d-English-Full-Base-*", v.Major)}
	case v.Revision > 0 && v.ServicePack > 0:
		s.Names = []string{fmt.Sprintf("Windows_Server-%d-R%d_SP%d-English-*-Base-*", v.Major, v.Revision, v.ServicePack)}
	case v.Revision > 0:
		s.Names = []string{fmt.Sprintf("Windows_Server-%d-R%d_RTM-English-*-Base-*", v.Major, v.Revision)}
	case v.ServicePack > 0:
		s.Names = []string{fmt.Sprintf("Windows_Server-%d-SP%d-English-*-Base-*", v.Major, v.ServicePack)}
	default:
		s.Names = []string{fmt.Sprintf("Windows_Server-%d-RTM-English-*-Base-*", v.Major)}
	}
	return s
}

// Matches names like "Windows_Server-2012-R2_RTM-English-64Bit-Base-..."
// and "Windows_Server-2019-English-Full-Base-...".
var windowsNameRE = regexp.MustCompile(`(?i)^Windows_Server-(\d+)(?:-R(\d+))?(?:[-_](?:SP(\d+)|RTM))?-English`)

func (*windows) DetectFromImageName(name string) (Platform, bool) {
	m := windowsNameRE.FindStringSubmatch(name)
	if m == nil {
		return Platform{}, false
	}
	var v windowsVersion
	v.Major, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		v.Revision, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		v.ServicePack, _ = strconv.Atoi(m[3])
	}
	return Platform{
		Family:       "windows",
		Version:      v.String(),
		Architecture: archFromImageName(name),
	}, true
}

// SortByVersion orders by the (major, revision, service pack) tuple,
// highest first.
func (w *windows) SortByVersion(images []types.Image) []types.Image {
	return sortByDetectedVersion(w, images, func(version string) float64 {
		v, ok := parseWindowsVersion(version)
		if !ok {
			return -1
		}
		return float64(v.Major)*10000 + float64(v.Revision)*100 + float64(v.ServicePack)
	})
}
