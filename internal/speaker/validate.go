package speaker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// minNameLength is the minimum trimmed length for a speaker name or role.
const minNameLength = 2

// nearDuplicateThreshold is the Jaro-Winkler score above which two distinct
// names are flagged as likely referring to the same person.
const nearDuplicateThreshold = 0.92

// allowedCharset restricts names and roles to letters, spaces, hyphens,
// apostrophes, and periods.
var allowedCharset = regexp.MustCompile(`^[\p{L} .'-]+$`)

// ValidateName checks a candidate name for the entry identified by
// excludingID against the given registry snapshot.
//
// Rules:
//   - trimmed length must be at least 2 characters;
//   - only letters, spaces, hyphens, apostrophes, and periods are allowed;
//   - the trimmed, case-insensitive name must not collide with any other
//     entry's non-empty name.
//
// The returned list is ordered and empty when the candidate is valid.
// ValidateName is pure: no state, no knowledge of UI surfaces, so the same
// rule set serves both per-keystroke feedback and the final pre-save check.
func ValidateName(candidate string, entries []Entry, excludingID string) ValidationErrors {
	var errs ValidationErrors
	trimmed := strings.TrimSpace(candidate)

	if len([]rune(trimmed)) < minNameLength {
		errs = append(errs, ValidationError{
			SpeakerID: excludingID,
			Field:     FieldName,
			Message:   fmt.Sprintf("name must be at least %d characters", minNameLength),
		})
		return errs
	}

	if !allowedCharset.MatchString(trimmed) {
		errs = append(errs, ValidationError{
			SpeakerID: excludingID,
			Field:     FieldName,
			Message:   "name may only contain letters, spaces, hyphens, apostrophes, and periods",
		})
	}

	lowered := strings.ToLower(trimmed)
	for _, e := range entries {
		if e.ID == excludingID {
			continue
		}
		other := strings.TrimSpace(e.Name)
		if other == "" {
			continue
		}
		if strings.ToLower(other) == lowered {
			errs = append(errs, ValidationError{
				SpeakerID: excludingID,
				Field:     FieldName,
				Message:   fmt.Sprintf("another speaker is already named %q", other),
			})
			break
		}
	}

	return errs
}

// ValidateRole checks a candidate role. The charset and length rules match
// [ValidateName], but an empty role is always valid: role is optional.
func ValidateRole(candidate string, speakerID string) ValidationErrors {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return nil
	}

	var errs ValidationErrors
	if len([]rune(trimmed)) < minNameLength {
		errs = append(errs, ValidationError{
			SpeakerID: speakerID,
			Field:     FieldRole,
			Message:   fmt.Sprintf("role must be at least %d characters", minNameLength),
		})
		return errs
	}
	if !allowedCharset.MatchString(trimmed) {
		errs = append(errs, ValidationError{
			SpeakerID: speakerID,
			Field:     FieldRole,
			Message:   "role may only contain letters, spaces, hyphens, apostrophes, and periods",
		})
	}
	return errs
}

// ValidateEntry runs name and role validation for a single entry against the
// snapshot, returning the combined ordered error list.
func ValidateEntry(e Entry, entries []Entry) ValidationErrors {
	errs := ValidateName(e.Name, entries, e.ID)
	errs = append(errs, ValidateRole(e.Role, e.ID)...)
	return errs
}

// ValidateAll validates every entry in the set against the set itself.
// Used by the atomic pre-save check: either the whole set passes or the
// caller receives the full ordered error list.
//
// An entry with an empty trimmed name is an unmapped speaker, not an error:
// the name rules only apply once a name has been assigned. Roles are checked
// unconditionally.
func ValidateAll(entries []Entry) ValidationErrors {
	var errs ValidationErrors
	for _, e := range entries {
		if strings.TrimSpace(e.Name) != "" {
			errs = append(errs, ValidateName(e.Name, entries, e.ID)...)
		}
		errs = append(errs, ValidateRole(e.Role, e.ID)...)
	}
	return errs
}

// NearDuplicate reports whether candidate is suspiciously close to another
// entry's committed name without being an exact (case-insensitive) match.
// "Jon Smith" vs "John Smith" passes exact-duplicate validation but almost
// certainly refers to the same person, so callers surface the returned name
// as an advisory warning rather than a hard error.
//
// The check combines Double Metaphone phonetic overlap with Jaro-Winkler
// similarity on the lowered strings.
func NearDuplicate(candidate string, entries []Entry, excludingID string) (string, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(candidate))
	if trimmed == "" {
		return "", false
	}
	candPrimary, candSecondary := matchr.DoubleMetaphone(trimmed)

	var bestName string
	var bestScore float64

	for _, e := range entries {
		if e.ID == excludingID {
			continue
		}
		other := strings.TrimSpace(e.Name)
		if other == "" {
			continue
		}
		otherLower := strings.ToLower(other)
		if otherLower == trimmed {
			continue // exact duplicates are a validation error, not a warning
		}

		score := matchr.JaroWinkler(trimmed, otherLower, false)
		p, s := matchr.DoubleMetaphone(otherLower)
		phonetic := codeOverlap(candPrimary, candSecondary, p, s)

		if (score >= nearDuplicateThreshold || (phonetic && score >= 0.85)) && score > bestScore {
			bestName = other
			bestScore = score
		}
	}

	return bestName, bestName != ""
}

// codeOverlap reports whether any non-empty Double Metaphone code is shared
// between the two (primary, secondary) pairs.
func codeOverlap(p1, s1, p2, s2 string) bool {
	for _, a := range []string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || a == s2 {
			return true
		}
	}
	return false
}
