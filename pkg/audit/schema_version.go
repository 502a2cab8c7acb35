package audit

import (
	"github.com/Masterminds/semver/v3"
)

// CompatibleSchemaVersion reports whether an event recorded under
// recordedVersion can still be replayed and hash-verified against the
// canonical schema this binary implements (currentVersion). A ledger
// entry is compatible as long as it doesn't carry a newer major version
// than the running binary understands — an auditor running last year's
// schema should never silently accept this year's shape.
func CompatibleSchemaVersion(currentVersion, recordedVersion string) bool {
	current, err := semver.NewVersion(currentVersion)
	if err != nil {
		return false
	}
	recorded, err := semver.NewVersion(recordedVersion)
	if err != nil {
		return false
	}
	return recorded.Major() <= current.Major()
}
