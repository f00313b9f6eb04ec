// Package sql guards user-supplied names before they reach generated SQL text.
package sql

import (
	"errors"
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"
)

var (
	// ErrUnsafeIdentifier indicates a name that cannot be safely folded into
	// SQL text, even quoted.
	ErrUnsafeIdentifier = errors.New("unsafe identifier")
)

// identifierPattern admits the portable subset both engines accept: a letter
// or underscore followed by up to 62 letters, digits, underscores or dollar
// signs. 63 characters total is the postgres identifier limit.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,62}$`)

// ValidateIdentifier checks one user-supplied name (a database, schema,
// table or column) before it is interpolated into SQL as a quoted
// identifier. kind names the field in error messages.
//
// Names that pass the pattern are additionally fingerprinted with
// libinjection, so a lexically plausible name that tokenizes as an injection
// payload is still rejected.
func ValidateIdentifier(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is required: %w", kind, ErrUnsafeIdentifier)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%s name %q: %w", kind, name, ErrUnsafeIdentifier)
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("%s name %q fingerprints as injection (%s): %w",
			kind, name, string(fingerprint), ErrUnsafeIdentifier)
	}
	return nil
}
