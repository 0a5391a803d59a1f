package lockfile

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// rawV1Package is the v1 (skill-lock.json) entry shape: version, resolved,
// integrity only — no dependencies, no github/local sections exist yet.
type rawV1Package struct {
	Version   string `json:"version"`
	Resolved  string `json:"resolved"`
	Integrity string `json:"integrity"`
}

type rawV1 struct {
	Skills map[string]rawV1Package `json:"skills"`
}

// upgradeFromV1 converts a v1 document (top-level "skills") into the
// current in-memory shape. §9(c): the mixed-case legacy field is preserved
// only in memory — the renamed "packages" key is what gets written back out
// on the next Save.
func upgradeFromV1(raw []byte) (*Lockfile, error) {
	var v1 rawV1
	if err := json.Unmarshal(raw, &v1); err != nil {
		return nil, errors.Wrap(err, "parsing skill-lock.json (v1)")
	}

	l := New("")
	for k, p := range v1.Skills {
		l.Packages[k] = Package{
			Version:   p.Version,
			Resolved:  p.Resolved,
			Integrity: p.Integrity,
		}
	}
	return l, nil
}

// rawCurrent mirrors Lockfile field-for-field; used both to detect the
// declared lockfileVersion and, since the shape has been additive since v2,
// to decode any version 2-5 document directly (absent sections simply
// unmarshal to nil maps).
type rawCurrent struct {
	LockfileVersion int                      `json:"lockfileVersion"`
	RegistryURL     string                   `json:"registryUrl"`
	Packages        map[string]Package       `json:"packages"`
	GitHubPackages  map[string]GitHubPackage `json:"githubPackages"`
	LocalPackages   map[string]LocalPackage  `json:"localPackages"`
}

// upgradeFromRaw normalises a pspm-lock.json document of any version <=
// CurrentVersion to the current in-memory shape. Readers must accept any
// version <= current (§3); versions 2-5 share the same additive shape, so
// normalisation is just filling in nil maps.
func upgradeFromRaw(raw []byte) (*Lockfile, error) {
	var rc rawCurrent
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, errors.Wrap(err, "parsing pspm-lock.json")
	}

	if rc.LockfileVersion > CurrentVersion {
		return nil, errors.Errorf("pspm-lock.json declares version %d, newest understood is %d", rc.LockfileVersion, CurrentVersion)
	}
	if rc.LockfileVersion < 2 {
		return nil, errors.Errorf("pspm-lock.json declares version %d under the current filename; version 1 must use %s", rc.LockfileVersion, LegacyFileName)
	}

	l := &Lockfile{
		LockfileVersion: CurrentVersion,
		RegistryURL:     rc.RegistryURL,
		Packages:        rc.Packages,
		GitHubPackages:  rc.GitHubPackages,
		LocalPackages:   rc.LocalPackages,
	}
	if l.Packages == nil {
		l.Packages = map[string]Package{}
	}
	if l.GitHubPackages == nil {
		l.GitHubPackages = map[string]GitHubPackage{}
	}
	if l.LocalPackages == nil {
		l.LocalPackages = map[string]LocalPackage{}
	}
	return l, nil
}
