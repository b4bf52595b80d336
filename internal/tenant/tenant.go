// Package tenant holds the per-polo configuration consumed by the sync engine.
package tenant

import (
	"fmt"
	"strings"
)

// Tenant is the immutable configuration of one polo (institutional
// subdomain). It is loaded once from the config file and passed by value;
// nothing in the engine mutates it during a run.
type Tenant struct {
	Subdomain        string   `mapstructure:"subdomain"`
	BaseURL          string   `mapstructure:"base_url"`
	Token            string   `mapstructure:"token"`
	Active           bool     `mapstructure:"active"`
	AllowedFunctions []string `mapstructure:"allowed_functions"`

	// Classification knobs. Empty slices fall back to the loader defaults.
	AnchorCategory    string   `mapstructure:"anchor_category"`
	RequiredKeywords  []string `mapstructure:"required_keywords"`
	ForbiddenKeywords []string `mapstructure:"forbidden_keywords"`
	MaxNameWords      int      `mapstructure:"max_name_words"`
	MinEnrollment     int      `mapstructure:"min_enrollment"`

	// Default monetary value assigned to newly created courses.
	DefaultCourseValue float64 `mapstructure:"default_course_value"`
}

// AllowsFunction reports whether the tenant may call the given web-service
// function. The comparison is exact; the allowlist is closed by default.
func (t Tenant) AllowsFunction(name string) bool {
	for _, fn := range t.AllowedFunctions {
		if fn == name {
			return true
		}
	}
	return false
}

// Validate checks the fields required before any network call is made.
func (t Tenant) Validate() error {
	if strings.TrimSpace(t.Subdomain) == "" {
		return fmt.Errorf("tenant: subdomain is required")
	}
	if !strings.HasPrefix(t.BaseURL, "http://") && !strings.HasPrefix(t.BaseURL, "https://") {
		return fmt.Errorf("tenant %s: base_url must be an http(s) URL, got %q", t.Subdomain, t.BaseURL)
	}
	if strings.TrimSpace(t.Token) == "" {
		return fmt.Errorf("tenant %s: token is required", t.Subdomain)
	}
	if len(t.AllowedFunctions) == 0 {
		return fmt.Errorf("tenant %s: allowed_functions must not be empty", t.Subdomain)
	}
	return nil
}
