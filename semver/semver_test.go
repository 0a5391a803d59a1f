package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHighest(t *testing.T) {
	v, ok := Resolve("*", []string{"1.0.0", "1.1.0", "2.0.0"})
	assert.True(t, ok)
	assert.Equal(t, "2.0.0", v)
}

func TestResolveLatestAlias(t *testing.T) {
	for _, rng := range []string{"", "*", "latest"} {
		v, ok := Resolve(rng, []string{"1.0.0", "2.0.0"})
		assert.True(t, ok)
		assert.Equal(t, "2.0.0", v)
	}
}

func TestResolveCaret(t *testing.T) {
	v, ok := Resolve("^1.0.0", []string{"1.0.0", "1.1.0", "2.0.0"})
	assert.True(t, ok)
	assert.Equal(t, "1.1.0", v)
}

func TestResolveDropsInvalidVersions(t *testing.T) {
	v, ok := Resolve("*", []string{"not-a-version", "1.0.0"})
	assert.True(t, ok)
	assert.Equal(t, "1.0.0", v)
}

func TestResolveNoMatch(t *testing.T) {
	_, ok := Resolve("^3.0.0", []string{"1.0.0", "2.0.0"})
	assert.False(t, ok)
}

func TestFindHighestSatisfyingDiamond(t *testing.T) {
	versions := []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0"}
	v, ok := FindHighestSatisfying([]string{"^1.0.0", ">=1.2.0"}, versions)
	assert.True(t, ok)
	assert.Equal(t, "1.3.0", v)
}

func TestFindHighestSatisfyingConflict(t *testing.T) {
	_, ok := FindHighestSatisfying([]string{"^1.0.0", "^2.0.0"}, []string{"1.0.0", "2.0.0"})
	assert.False(t, ok)
}

func TestFindHighestSatisfyingSubsumed(t *testing.T) {
	// A root with a narrower range and a secondary with a wider superset
	// range must resolve the same as the narrower range alone.
	versions := []string{"1.0.0", "1.2.0", "1.5.0", "2.0.0"}
	narrow, ok := FindHighestSatisfying([]string{"^1.2.0"}, versions)
	assert.True(t, ok)
	both, ok := FindHighestSatisfying([]string{"^1.2.0", ">=1.0.0"}, versions)
	assert.True(t, ok)
	assert.Equal(t, narrow, both)
}

func TestIntersectsDisjointMajors(t *testing.T) {
	assert.False(t, Intersects([]string{"^1.0.0", "^2.0.0"}))
}

func TestIntersectsOverlapping(t *testing.T) {
	assert.True(t, Intersects([]string{"^1.0.0", ">=1.2.0"}))
}

func TestSortDescending(t *testing.T) {
	out := Sort([]string{"1.0.0", "2.0.0", "bogus", "1.5.0"})
	assert.Equal(t, []string{"2.0.0", "1.5.0", "1.0.0"}, out)
}
