package versions

import "github.com/Masterminds/semver/v3"

// Direction describes how a repository's manifest version moved between passes
type Direction string

const (
	// DirectionUpgrade means the new version is a higher semantic version
	DirectionUpgrade Direction = "upgrade"

	// DirectionDowngrade means the new version is a lower semantic version
	DirectionDowngrade Direction = "downgrade"

	// DirectionUnordered means the versions cannot be ordered. Either one is not
	// valid semver or both parse to the same version despite differing text.
	DirectionUnordered Direction = "unordered"
)

// CompareDirection classifies the move from oldVersion to newVersion.
// It is informational only: any textual difference is a change regardless of direction.
func CompareDirection(oldVersion, newVersion string) Direction {
	newSemver, errNew := semver.StrictNewVersion(trimV(newVersion))
	oldSemver, errOld := semver.StrictNewVersion(trimV(oldVersion))
	if errNew != nil || errOld != nil {
		return DirectionUnordered
	}

	switch newSemver.Compare(oldSemver) {
	case 1:
		return DirectionUpgrade
	case -1:
		return DirectionDowngrade
	default:
		return DirectionUnordered
	}
}

func trimV(v string) string {
	if len(v) > 1 && v[0] == 'v' {
		return v[1:]
	}
	return v
}
