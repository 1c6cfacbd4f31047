package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalized forms are invariant-uppercased so lookups and uniqueness checks
// are case-insensitive regardless of the server locale. language.Und avoids
// locale-specific casing surprises (e.g. the Turkish dotless i).
var invariantUpper = cases.Upper(language.Und)

// NormalizeUserName returns the canonical form of a username used by the
// unique UserNameIndex.
func NormalizeUserName(raw string) string {
	return invariantUpper.String(strings.TrimSpace(raw))
}

// NormalizeEmail returns the canonical form of an email used by the
// non-unique EmailIndex lookup key. Distinct raw emails can normalize to the
// same value in some locales; uniqueness is enforced on the raw email, and
// lookups by normalized email return every match.
func NormalizeEmail(raw string) string {
	return invariantUpper.String(strings.TrimSpace(raw))
}
