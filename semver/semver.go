// Package semver implements C2: range satisfaction, highest-satisfying
// selection, and multi-range intersection, on top of Masterminds/semver/v3.
package semver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// isOpen reports whether a range string means "accept anything": the three
// spellings §4.2 names are "*", "" and "latest".
func isOpen(rng string) bool {
	return rng == "" || rng == "*" || rng == "latest"
}

// parseValid parses versions, silently dropping invalid ones: they are
// never presented to the user as candidates (§4.2).
func parseValid(versions []string) []*semver.Version {
	out := make([]*semver.Version, 0, len(versions))
	for _, v := range versions {
		parsed, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	sort.Sort(sort.Reverse(bySemver(out)))
	return out
}

type bySemver []*semver.Version

func (s bySemver) Len() int           { return len(s) }
func (s bySemver) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s bySemver) Less(i, j int) bool { return s[i].LessThan(s[j]) }

// Resolve returns the highest version in versions that satisfies rng. "*",
// "" and "latest" all mean "highest". Returns ok=false if nothing satisfies.
func Resolve(rng string, versions []string) (version string, ok bool) {
	candidates := parseValid(versions)
	if len(candidates) == 0 {
		return "", false
	}
	if isOpen(rng) {
		return candidates[0].Original(), true
	}

	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return "", false
	}
	for _, v := range candidates {
		if constraint.Check(v) {
			return v.Original(), true
		}
	}
	return "", false
}

// FindHighestSatisfying returns the highest version satisfying every range
// in ranges simultaneously, by intersecting them into a single
// Masterminds/semver constraint (comma-joined ranges are ANDed). Returns
// ok=false if the ranges are jointly unsatisfiable or no valid version
// exists at all.
func FindHighestSatisfying(ranges []string, versions []string) (version string, ok bool) {
	candidates := parseValid(versions)
	if len(candidates) == 0 {
		return "", false
	}

	var open []string
	for _, r := range ranges {
		if !isOpen(r) {
			open = append(open, r)
		}
	}
	if len(open) == 0 {
		return candidates[0].Original(), true
	}

	constraint, err := intersect(open)
	if err != nil {
		return "", false
	}
	for _, v := range candidates {
		if constraint.Check(v) {
			return v.Original(), true
		}
	}
	return "", false
}

// probeVersions is a synthetic sweep of major.minor.0 versions (majors 0-60,
// minors 0, 1, 2, 3, 5, 10, 20 and 50) used by
// Intersects to approximate whether a joined constraint is satisfiable
// without reference to a concrete, registry-supplied version set.
var probeVersions = func() []*semver.Version {
	minors := []int{0, 1, 2, 3, 5, 10, 20, 50}
	out := make([]*semver.Version, 0, 64*len(minors))
	for major := 0; major <= 60; major++ {
		for _, minor := range minors {
			v, err := semver.NewVersion(itoa(major) + "." + itoa(minor) + ".0")
			if err == nil {
				out = append(out, v)
			}
		}
	}
	return out
}()

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// Intersects reports whether the given ranges can, in principle, be
// simultaneously satisfied. It is a heuristic shortcut (§4.9): the
// probeVersions sweep is checked against the intersected constraint, so
// algebraically disjoint ranges like "^1.0.0" and "^2.0.0" are caught before
// a registry round trip. A single range always reports true. Two or more
// ranges that no probe satisfies report false even when a version between
// the probes would satisfy them all (e.g. two ranges both pinning 1.2.3).
func Intersects(ranges []string) bool {
	var open []string
	for _, r := range ranges {
		if !isOpen(r) {
			open = append(open, r)
		}
	}
	if len(open) == 0 {
		return true
	}
	c, err := intersect(open)
	if err != nil {
		return false
	}
	for _, v := range probeVersions {
		if c.Check(v) {
			return true
		}
	}
	// No probe matched; a single range is still reported satisfiable, since
	// a patch-pinned range can fall between the probes.
	return len(open) == 1
}

func intersect(ranges []string) (*semver.Constraints, error) {
	joined := ranges[0]
	for _, r := range ranges[1:] {
		joined += ", " + r
	}
	c, err := semver.NewConstraint(joined)
	if err != nil {
		return nil, errors.Wrapf(err, "intersecting ranges %v", ranges)
	}
	return c, nil
}

// Sort returns versions sorted strictly descending by semver, dropping
// invalid version strings.
func Sort(versions []string) []string {
	candidates := parseValid(versions)
	out := make([]string, len(candidates))
	for i, v := range candidates {
		out[i] = v.Original()
	}
	return out
}
