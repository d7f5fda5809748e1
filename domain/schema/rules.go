// Package schema loads per-entity field rules and validates documents
// against them.
package schema

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var structCheck = validator.New()

// ForeignKey declares that a field's value must name an existing document of
// another entity.
type ForeignKey struct {
	Entity string `json:"entity" validate:"required"`
	Field  string `json:"field" validate:"required"`
}

// Rule is the set of recognised options for one field.
type Rule struct {
	Type       string      `json:"type" validate:"required,oneof=string integer float boolean datetime date json"`
	Required   *bool       `json:"required,omitempty"`
	MaxLength  int         `json:"max_length,omitempty" validate:"omitempty,gt=0"`
	Min        *float64    `json:"min,omitempty"`
	Max        *float64    `json:"max,omitempty"`
	Regex      string      `json:"regex,omitempty"`
	Unique     bool        `json:"unique,omitempty"`
	ForeignKey *ForeignKey `json:"foreign_key,omitempty"`
}

// IsRequired reports the required flag, which defaults to true when the
// schema does not say otherwise.
func (r Rule) IsRequired() bool {
	return r.Required == nil || *r.Required
}

// Schema maps field names to their rules. An empty schema means "no
// validation".
type Schema map[string]Rule

// Check verifies that a loaded schema is structurally well-formed. Schemas
// failing the check are dropped by the registry.
func (s Schema) Check() error {
	for field, rule := range s {
		if err := structCheck.Struct(rule); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
		if rule.Regex != "" {
			if _, err := regexp.Compile(rule.Regex); err != nil {
				return fmt.Errorf("field %q: invalid regex: %w", field, err)
			}
		}
		if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
			return fmt.Errorf("field %q: min %v exceeds max %v", field, *rule.Min, *rule.Max)
		}
	}
	return nil
}
