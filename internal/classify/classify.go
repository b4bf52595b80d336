// Package classify decides which entries of a tenant's remote catalog are
// enrollable courses, as opposed to disciplines, modules and other
// sub-units that share the same namespace. Everything here is a pure
// function of its inputs: same catalog and config, same output.
package classify

import (
	"strings"
	"unicode"
)

// StructuralType labels how a classified course is represented remotely.
type StructuralType string

const (
	StructCourse         StructuralType = "curso"
	StructCourseCategory StructuralType = "categoria_curso"
)

// Config carries the per-tenant classification knobs.
type Config struct {
	// AnchorCategory is the fuzzy (case-insensitive substring) name of the
	// parent category whose direct children are courses. Empty disables the
	// hierarchical strategy.
	AnchorCategory string

	// RequiredKeywords: when non-empty, a name must contain at least one.
	RequiredKeywords []string

	// ForbiddenKeywords: a name containing any of these is never a course.
	ForbiddenKeywords []string

	// MaxNameWords: names longer than this are treated as disciplines.
	MaxNameWords int

	// MinEnrollment gates the flat strategy: top-level courses need at
	// least this many enrolled users to count.
	MinEnrollment int
}

// Course is a catalog entry accepted as an enrollable course.
type Course struct {
	ExternalID     int64
	Name           string
	ShortName      string
	StructuralType StructuralType
	ParentName     string
	Confidence     int
	Strategy       string
}

var romanNumerals = map[string]bool{
	"i": true, "ii": true, "iii": true, "iv": true, "v": true,
	"vi": true, "vii": true, "viii": true, "ix": true, "x": true,
}

// hasRomanSubunit reports whether any standalone token of the name is a
// Roman numeral I..X, which marks a numbered sub-course ("Anatomia II"),
// not a standalone course.
func hasRomanSubunit(name string) bool {
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if romanNumerals[strings.ToLower(tok)] {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// acceptName is the classification predicate shared by every strategy.
func acceptName(name string, cfg Config) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if len(cfg.RequiredKeywords) > 0 {
		found := false
		for _, kw := range cfg.RequiredKeywords {
			if containsFold(name, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, kw := range cfg.ForbiddenKeywords {
		if containsFold(name, kw) {
			return false
		}
	}
	if hasRomanSubunit(name) {
		return false
	}
	if cfg.MaxNameWords > 0 && len(strings.Fields(name)) > cfg.MaxNameWords {
		return false
	}
	return true
}

func clampConfidence(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
