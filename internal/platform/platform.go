// platform maps between OS family names and the rules for finding, naming
// and logging into machine images of that family: the default login user,
// the image-name search filter, parsing a concrete image name back into a
// structured platform, and ordering same-family images by version.
package platform

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Platform describes a detected or desired OS as a family/version/arch
// triple. Version and Architecture may be empty. Immutable once built.
type Platform struct {
	Family       string
	Version      string
	Architecture string
}

// Search describes an image-name search: the owning account (by id or by
// alias, never both), one or more name globs, and optionally an
// architecture constraint.
type Search struct {
	OwnerID      string
	OwnerAlias   string
	Names        []string
	Architecture string
}

// Matcher is implemented once per supported OS family.
type Matcher interface {
	// Family is the canonical family key.
	Family() string
	// Aliases are additional keys this matcher answers to.
	Aliases() []string
	// Username is the default login user for the given version.
	Username(version string) string
	// ImageSearch builds the image search for the platform.
	ImageSearch(p Platform) Search
	// DetectFromImageName parses an image name back into a Platform.
	// Malformed or foreign names return (Platform{}, false).
	DetectFromImageName(name string) (Platform, bool)
	// SortByVersion orders same-family images by version, most recent
	// first, preserving input order within equal versions.
	SortByVersion(images []types.Image) []types.Image
}

// Architecture tokens recognized at the end of a platform string.
var architectures = []string{"x86_64", "arm64", "i386"}

func isArchitecture(token string) bool {
	for _, arch := range architectures {
		if token == arch {
			return true
		}
	}
	return false
}

// Catalog is an explicit, ordered registry of family matchers.
type Catalog struct {
	ordered  []Matcher
	byFamily map[string]Matcher
}

// NewCatalog builds the catalog with the closed set of supported families,
// in detection order.
func NewCatalog() *Catalog {
	c := &Catalog{byFamily: map[string]Matcher{}}
	for _, m := range []Matcher{
		&amazon2{},
		&amazon{},
		&ubuntu{},
		&rhel{},
		&centos{},
		&debian{},
		&fedora{},
		&freebsd{},
		&windows{},
	} {
		c.register(m)
	}
	return c
}

// register appends m to the detection order and binds its family key and
// aliases. The last registration for a key wins; there is no
// de-registration.
func (c *Catalog) register(m Matcher) {
	c.ordered = append(c.ordered, m)
	c.byFamily[m.Family()] = m
	for _, alias := range m.Aliases() {
		c.byFamily[alias] = m
	}
}

// ForFamily returns the matcher registered for the family key or alias.
func (c *Catalog) ForFamily(family string) (Matcher, bool) {
	m, ok := c.byFamily[family]
	return m, ok
}

// FromPlatformString parses "family[-version][-arch]". A trailing segment
// that is a recognized architecture token is consumed as the architecture
// before version parsing. Unknown families return ok=false; callers must
// treat that as "not a standard platform", not as an error.
func (c *Catalog) FromPlatformString(s string) (Matcher, Platform, bool) {
	tokens := strings.Split(s, "-")

	var p Platform
	if last := tokens[len(tokens)-1]; len(tokens) > 1 && isArchitecture(last) {
		p.Architecture = last
		tokens = tokens[:len(tokens)-1]
	}
	p.Family = tokens[0]
	if len(tokens) > 1 {
		p.Version = strings.Join(tokens[1:], "-")
	}

	m, ok := c.byFamily[p.Family]
	if !ok {
		return nil, Platform{}, false
	}
	p.Family = m.Family()
	return m, p, true
}

// DetectFromImageName tries every matcher in registration order and returns
// the first that recognizes the image name.
func (c *Catalog) DetectFromImageName(name string) (Matcher, Platform, bool) {
	for _, m := range c.ordered {
		if p, ok := m.DetectFromImageName(name); ok {
			return m, p, true
		}
	}
	return nil, Platform{}, false
}
