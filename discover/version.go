package discover

import "github.com/Masterminds/semver"

// versionMatch reports whether advertised satisfies the configured semver
// requirement, e.g. requirement "^0.1.0" against advertised "0.1.4". A
// malformed advertised version or requirement is treated as incompatible
// rather than panicking.
func versionMatch(requirement, advertised string) bool {
	constraint, err := semver.NewConstraint(requirement)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(advertised)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}
