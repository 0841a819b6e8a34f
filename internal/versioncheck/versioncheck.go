// Package versioncheck compares this build's version against an optional
// `min_compatible_version` configuration key, refusing to start when the
// build is older than what the configured receiver fleet expects.
//
// Grounded on version_checker.go's startup version comparison, but adapted
// from its GitHub-polling update-notification role (which this domain has
// no use for: an OSC router has no update server to poll) into a one-shot
// local compatibility gate, using github.com/hashicorp/go-version for
// proper semver comparison instead of the teacher's regex-scraped string
// equality check.
package versioncheck

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"
)

// Check returns an error if buildVersion is older than minCompatible. An
// empty minCompatible (the config key left unset) always passes. An
// unparsable build or minimum version string is also returned as an error,
// so the caller refuses to start just as for a too-old build.
func Check(buildVersion, minCompatible string) error {
	if minCompatible == "" {
		return nil
	}

	build, err := goversion.NewVersion(buildVersion)
	if err != nil {
		return fmt.Errorf("versioncheck: build version %q is not parseable: %w", buildVersion, err)
	}
	min, err := goversion.NewVersion(minCompatible)
	if err != nil {
		return fmt.Errorf("versioncheck: configured min_compatible_version %q is not parseable: %w", minCompatible, err)
	}

	if build.LessThan(min) {
		return fmt.Errorf("versioncheck: this build (%s) is older than the configured minimum (%s)", build, min)
	}
	return nil
}
