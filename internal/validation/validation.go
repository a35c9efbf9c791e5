// Package validation provides the validation of module identifiers. A module
// identifier is used to construct paths on the filesystem, so it needs to be
// validated before any per-module filesystem operation takes place.
package validation

import (
	"fmt"
	"regexp"
)

// PatternModuleID is the regex pattern that every module identifier must match.
const PatternModuleID = `^[a-zA-Z][a-zA-Z0-9._-]+$`

//nolint:gochecknoglobals
var moduleIDRegex = regexp.MustCompile(PatternModuleID)

// ModuleID validates a module identifier against [PatternModuleID].
func ModuleID(id string) error {
	if !moduleIDRegex.MatchString(id) {
		return fmt.Errorf("(validation) %w: %q must match %s", ErrInvalidIdentifier, id, PatternModuleID)
	}

	return nil
}
