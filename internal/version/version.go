// Package version maintains MAJOR.MINOR.PATCH strings for agents and templates.
package version

import "github.com/Masterminds/semver/v3"

// Initial is assigned on create.
const Initial = "1.0.0"

// reset is returned by BumpPatch when the stored version cannot be parsed.
const reset = "1.0.1"

// BumpPatch returns v with PATCH incremented by one. Anything other than three
// dot-separated integers (prerelease and build metadata included) yields "1.0.1".
func BumpPatch(v string) string {
	sv, err := semver.StrictNewVersion(v)
	if err != nil || sv.Prerelease() != "" || sv.Metadata() != "" {
		return reset
	}
	return sv.IncPatch().String()
}

// Valid reports whether v is a plain MAJOR.MINOR.PATCH version.
func Valid(v string) bool {
	sv, err := semver.StrictNewVersion(v)
	return err == nil && sv.Prerelease() == "" && sv.Metadata() == ""
}
