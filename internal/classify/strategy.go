package classify

import (
	"strings"

	"polosync/internal/moodle"
)

// Strategy is one heuristic for extracting courses from a flat catalog.
// Strategies are tried in order; the first non-empty result wins.
type Strategy struct {
	Name string
	Run  func(entries []moodle.CatalogEntry, cfg Config) []Course
}

// DefaultStrategies is the fallback cascade: hierarchical, then flat
// top-level courses, then a generic keyword scan.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "hierarchical", Run: hierarchical},
		{Name: "flat", Run: flat},
		{Name: "generic", Run: generic},
	}
}

// Classify runs the cascade over one tenant's catalog. An entry that no
// strategy accepts is simply absent from the result; classification itself
// never fails.
func Classify(entries []moodle.CatalogEntry, cfg Config) []Course {
	return ClassifyWith(DefaultStrategies(), entries, cfg)
}

// ClassifyWith evaluates the given strategies lazily until one yields a
// non-empty result.
func ClassifyWith(strategies []Strategy, entries []moodle.CatalogEntry, cfg Config) []Course {
	for _, s := range strategies {
		if out := s.Run(entries, cfg); len(out) > 0 {
			return out
		}
	}
	return nil
}

// hierarchical locates the anchor category by case-insensitive substring
// match and classifies its direct children (categories or courses) as
// courses, subject to the shared predicate.
func hierarchical(entries []moodle.CatalogEntry, cfg Config) []Course {
	if strings.TrimSpace(cfg.AnchorCategory) == "" {
		return nil
	}

	var anchor *moodle.CatalogEntry
	for i := range entries {
		e := &entries[i]
		if e.Kind == moodle.KindCategory && containsFold(e.Name, cfg.AnchorCategory) {
			anchor = e
			break
		}
	}
	if anchor == nil {
		return nil
	}

	var out []Course
	for _, e := range entries {
		if e.ParentID != anchor.ID || !e.Visible {
			continue
		}
		if !acceptName(e.Name, cfg) {
			continue
		}
		structural := StructCourse
		if e.Kind == moodle.KindCategory {
			structural = StructCourseCategory
		}
		out = append(out, Course{
			ExternalID:     e.ID,
			Name:           e.Name,
			ShortName:      ShortName(e.Name),
			StructuralType: structural,
			ParentName:     anchor.Name,
			Confidence:     clampConfidence(95),
			Strategy:       "hierarchical",
		})
	}
	return out
}

// flat treats top-level enrollable courses as candidates directly. The
// front-page "site" entry (id 1) is skipped, as are courses below the
// enrollment threshold.
func flat(entries []moodle.CatalogEntry, cfg Config) []Course {
	var out []Course
	for _, e := range entries {
		if e.Kind != moodle.KindCourse || !e.Visible || e.ID == 1 {
			continue
		}
		if e.Enrolled < cfg.MinEnrollment {
			continue
		}
		if !acceptName(e.Name, cfg) {
			continue
		}
		out = append(out, Course{
			ExternalID:     e.ID,
			Name:           e.Name,
			ShortName:      ShortName(e.Name),
			StructuralType: StructCourse,
			ParentName:     "",
			Confidence:     flatConfidence(e),
			Strategy:       "flat",
		})
	}
	return out
}

// flatConfidence starts at 50 and rewards enrollment volume (up to +30)
// and short names (up to +20). Advisory only; never gates persistence.
func flatConfidence(e moodle.CatalogEntry) int {
	score := 50

	bonus := e.Enrolled / 10
	if bonus > 30 {
		bonus = 30
	}
	score += bonus

	switch words := len(strings.Fields(e.Name)); {
	case words <= 3:
		score += 20
	case words <= 5:
		score += 10
	}
	return clampConfidence(score)
}

// genericCourseKeywords is the domain-agnostic allow table used when
// neither prior strategy yields anything.
var genericCourseKeywords = []string{
	"curso", "técnico", "tecnico", "graduação", "graduacao",
	"pós", "pos-", "bacharelado", "licenciatura", "formação", "formacao",
}

// generic scans every visible entry name against the keyword table.
func generic(entries []moodle.CatalogEntry, cfg Config) []Course {
	var out []Course
	for _, e := range entries {
		if !e.Visible || e.ID == 1 {
			continue
		}
		matched := false
		for _, kw := range genericCourseKeywords {
			if containsFold(e.Name, kw) {
				matched = true
				break
			}
		}
		if !matched || !acceptName(e.Name, cfg) {
			continue
		}
		structural := StructCourse
		if e.Kind == moodle.KindCategory {
			structural = StructCourseCategory
		}
		out = append(out, Course{
			ExternalID:     e.ID,
			Name:           e.Name,
			ShortName:      ShortName(e.Name),
			StructuralType: structural,
			ParentName:     "",
			Confidence:     clampConfidence(40),
			Strategy:       "generic",
		})
	}
	return out
}
