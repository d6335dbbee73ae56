// Package derive computes the display-only fields of an extraction result from
// the free text the backend returns. Every function is best-effort and falls
// back to a fixed label instead of failing.
package derive

import (
	"regexp"
	"strings"

	"github.com/profile-desk/backend/internal/models"
)

// NotSpecified is shown when a field cannot be derived.
const NotSpecified = "Not specified"

const (
	IndustryEngineering  = "Engineering & Consulting"
	IndustryConstruction = "Construction"
	IndustryDefault      = "Professional Services"
)

var (
	employeesPattern   = regexp.MustCompile(`(?i)(\d+)\+?[\s,.\-]*(?:technical|support|staff|employees)`)
	establishedPattern = regexp.MustCompile(`(?i)(?:established|founded|since)\s*(?:in\s*)?(\d{4})`)
)

// Industry classifies a company by its service offerings. Engineering wins
// over construction when both appear.
func Industry(services []string) string {
	if containsFold(services, "engineering") {
		return IndustryEngineering
	}
	if containsFold(services, "construction") {
		return IndustryConstruction
	}
	return IndustryDefault
}

// Employees returns an "<N>+ staff" label from the overview text.
func Employees(overview string) string {
	m := employeesPattern.FindStringSubmatch(overview)
	if m == nil {
		return NotSpecified
	}
	return m[1] + "+ staff"
}

// Established returns the founding year mentioned in the overview text.
func Established(overview string) string {
	m := establishedPattern.FindStringSubmatch(overview)
	if m == nil {
		return NotSpecified
	}
	return m[1]
}

// Apply fills the derived display fields of r from its profile.
func Apply(r *models.ExtractionResult) {
	r.Industry = Industry(r.ServiceOfferings)
	r.Employees = Employees(r.Overview)
	r.Established = Established(r.Overview)
}

func containsFold(items []string, needle string) bool {
	for _, item := range items {
		if strings.Contains(strings.ToLower(item), needle) {
			return true
		}
	}
	return false
}
