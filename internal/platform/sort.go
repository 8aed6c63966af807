package platform

import (
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// versionFloat parses a dotted version as a float, keeping at most one dot
// ("2018.03.0" scores as 2018.03). Unparseable versions score -1 and sort
// last.
func versionFloat(s string) float64 {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) > 2 {
		s = parts[0] + "." + parts[1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return -1
	}
	return f
}

// sortByDetectedVersion orders images by the version parsed out of each
// image's name, highest score first. The sort is stable so images with
// equal (or undetectable) versions keep their prior relative order.
func sortByDetectedVersion(m Matcher, images []types.Image, score func(version string) float64) []types.Image {
	type scored struct {
		img   types.Image
		score float64
	}
	ss := make([]scored, len(images))
	for i, img := range images {
		s := -1.0
		if p, ok := m.DetectFromImageName(aws.ToString(img.Name)); ok && p.Version != "" {
			s = score(p.Version)
		}
		ss[i] = scored{img: img, score: s}
	}
	sort.SliceStable(ss, func(i, j int) bool {
		return ss[i].score > ss[j].score
	})
	out := make([]types.Image, len(images))
	for i := range ss {
		out[i] = ss[i].img
	}
	return out
}

// archFromImageName extracts an architecture token embedded in an image
// name, normalizing Debian-style "amd64" to "x86_64".
func archFromImageName(name string) string {
	switch {
	case strings.Contains(name, "x86_64"):
		return "x86_64"
	case strings.Contains(name, "amd64"):
		return "x86_64"
	case strings.Contains(name, "arm64"):
		return "arm64"
	case strings.Contains(name, "i386"):
		return "i386"
	default:
		return ""
	}
}
