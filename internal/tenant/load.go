package tenant

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Defaults applied to tenants that leave the corresponding field empty.
var (
	DefaultAllowedFunctions = []string{
		"core_webservice_get_site_info",
		"core_course_get_categories",
		"core_course_get_courses",
		"core_enrol_get_enrolled_users",
	}
	DefaultForbiddenKeywords = []string{
		"disciplina", "módulo", "modulo", "estágio", "estagio", "introdução", "introducao",
	}
)

const (
	DefaultMaxNameWords  = 8
	DefaultMinEnrollment = 1
)

// File is the parsed tenants configuration file.
type File struct {
	Tenants []Tenant `mapstructure:"tenants"`
}

// Load reads the tenants YAML file at path, expands ${VAR} references in
// tokens from the environment, applies defaults and validates every active
// tenant. Inactive tenants are kept (the CLI reports them as skipped) but
// not validated beyond the subdomain.
func Load(path string) ([]Tenant, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read tenants config %s: %w", path, err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("parse tenants config %s: %w", path, err)
	}
	if len(f.Tenants) == 0 {
		return nil, fmt.Errorf("tenants config %s: no tenants defined", path)
	}

	seen := make(map[string]bool, len(f.Tenants))
	for i := range f.Tenants {
		t := &f.Tenants[i]
		t.Token = os.ExpandEnv(t.Token)
		applyDefaults(t)

		if seen[t.Subdomain] {
			return nil, fmt.Errorf("tenants config %s: duplicate subdomain %q", path, t.Subdomain)
		}
		seen[t.Subdomain] = true

		if !t.Active {
			continue
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tenants config %s: %w", path, err)
		}
	}
	return f.Tenants, nil
}

func applyDefaults(t *Tenant) {
	if len(t.AllowedFunctions) == 0 {
		t.AllowedFunctions = append([]string(nil), DefaultAllowedFunctions...)
	}
	if len(t.ForbiddenKeywords) == 0 {
		t.ForbiddenKeywords = append([]string(nil), DefaultForbiddenKeywords...)
	}
	if t.MaxNameWords == 0 {
		t.MaxNameWords = DefaultMaxNameWords
	}
	if t.MinEnrollment == 0 {
		t.MinEnrollment = DefaultMinEnrollment
	}
}

// Select returns the active tenants to process. When subdomain is empty it
// returns every active tenant; otherwise it returns the named tenant only,
// active or not, so an operator can force a run against a disabled polo.
func Select(tenants []Tenant, subdomain string) ([]Tenant, error) {
	if subdomain == "" {
		var active []Tenant
		for _, t := range tenants {
			if t.Active {
				active = append(active, t)
			}
		}
		if len(active) == 0 {
			return nil, fmt.Errorf("no active tenants configured")
		}
		return active, nil
	}
	for _, t := range tenants {
		if t.Subdomain == subdomain {
			if err := t.Validate(); err != nil {
				return nil, err
			}
			return []Tenant{t}, nil
		}
	}
	return nil, fmt.Errorf("tenant %q not found", subdomain)
}
