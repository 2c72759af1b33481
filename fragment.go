package tkdb

import (
	"regexp"
	"strings"
)

// Fragment is a raw sql fragment (where, from, group by, having, order by) supplied by the caller
//
// Fragments are concatenated into statements as-is (after Sanitize), they are never parameterized -
// so caller controlled content must never reach a Fragment unescaped
type Fragment string

var unsafeSequences = strings.NewReplacer(";", " ", "--", " ", "/*", " ")

// Sanitize strips statement terminators and comment openers from the fragment
//
// This is a floor, not a substitute for parameterized values
func (f Fragment) Sanitize() string {
	return unsafeSequences.Replace(string(f))
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var tableIdentifierPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*\.)?[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate as a column or alias name
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidTableIdentifier reports whether name is safe to interpolate as a (optionally schema qualified) table name
func ValidTableIdentifier(name string) bool {
	return tableIdentifierPattern.MatchString(name)
}

func checkIdentifier(kind string, name string) error {
	if !ValidIdentifier(name) {
		return configError(ErrInvalidIdentifier, "invalid %s %q", kind, name)
	}
	return nil
}

var camelBoundary = regexp.MustCompile(`[A-Z]`)

// ToSnakeCase converts a camelCase (or PascalCase) name to snake_case - e.g. "UserGroup" becomes "user_group"
func ToSnakeCase(name string) string {
	return strings.TrimLeft(strings.ToLower(camelBoundary.ReplaceAllString(name, "_$0")), "_")
}
