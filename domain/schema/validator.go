package schema

import (
	"fmt"
	"regexp"
	"time"

	"rserv/domain/document"
)

// DocumentSource is the slice of the entity store the validator needs for
// foreign-key and uniqueness checks.
type DocumentSource interface {
	// FileExists reports whether <entity>/<name>.json is stored.
	FileExists(entity, name string) bool
	// List returns every stored document of the entity.
	List(entity string) ([]document.Document, error)
}

// Validator validates documents against the registry's schemas.
type Validator struct {
	registry *Registry
	source   DocumentSource
}

// NewValidator creates a validator backed by the given registry and store.
func NewValidator(registry *Registry, source DocumentSource) *Validator {
	return &Validator{registry: registry, source: source}
}

// datetimeLayouts mirror ISO-8601 forms with and without zone or fraction.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Validate checks a document against the entity's schema and accumulates
// every violation instead of stopping at the first. An entity without a
// schema (or with an empty one) passes unconditionally.
func (v *Validator) Validate(entity string, doc document.Document) (bool, []string) {
	s, ok := v.registry.Get(entity)
	if !ok || len(s) == 0 {
		return true, nil
	}

	var errs []string
	for field, rule := range s {
		val, present := doc[field]
		if !present {
			if rule.IsRequired() {
				errs = append(errs, fmt.Sprintf("Missing required field: %s", field))
			}
			continue
		}

		errs = append(errs, v.checkType(field, rule, val)...)

		if rule.ForeignKey != nil {
			fk := rule.ForeignKey
			if !v.source.FileExists(fk.Entity, val.String()) {
				errs = append(errs, fmt.Sprintf(
					"Foreign key constraint failed: %s with %s=%s does not exist",
					fk.Entity, fk.Field, val.String(),
				))
			}
		}

		if rule.Unique {
			if msg := v.checkUnique(entity, field, val, doc); msg != "" {
				errs = append(errs, msg)
			}
		}
	}

	return len(errs) == 0, errs
}

func (v *Validator) checkType(field string, rule Rule, val document.Value) []string {
	var errs []string

	switch rule.Type {
	case "string":
		if val.Kind() != document.KindString {
			return []string{fmt.Sprintf("Field %s must be a string", field)}
		}
		if rule.MaxLength > 0 && len(val.Str()) > rule.MaxLength {
			errs = append(errs, fmt.Sprintf("Field %s exceeds maximum length of %d", field, rule.MaxLength))
		}
		if rule.Regex != "" && !matchAnchored(rule.Regex, val.Str()) {
			errs = append(errs, fmt.Sprintf("Field %s does not match the required pattern: %s", field, rule.Regex))
		}

	case "integer":
		if val.Kind() != document.KindInt {
			return []string{fmt.Sprintf("Field %s must be an integer", field)}
		}
		errs = append(errs, checkBounds(field, float64(val.Int()), rule)...)

	case "float":
		num, ok := val.Numeric()
		if !ok {
			return []string{fmt.Sprintf("Field %s must be a number", field)}
		}
		errs = append(errs, checkBounds(field, num, rule)...)

	case "boolean":
		if val.Kind() != document.KindBool {
			errs = append(errs, fmt.Sprintf("Field %s must be a boolean", field))
		}

	case "datetime":
		if val.Kind() != document.KindString || !parseAny(val.Str(), datetimeLayouts) {
			errs = append(errs, fmt.Sprintf("Field %s must be a valid ISO format datetime string", field))
		}

	case "date":
		if val.Kind() != document.KindString || !parseAny(val.Str(), []string{"2006-01-02"}) {
			errs = append(errs, fmt.Sprintf("Field %s must be a valid date string in YYYY-MM-DD format", field))
		}

	case "json":
		switch val.Kind() {
		case document.KindObject, document.KindArray, document.KindRef:
		default:
			errs = append(errs, fmt.Sprintf("Field %s must be a valid JSON object or array", field))
		}
	}

	return errs
}

func (v *Validator) checkUnique(entity, field string, val document.Value, doc document.Document) string {
	docs, err := v.source.List(entity)
	if err != nil {
		return ""
	}
	selfID, _ := doc.ID()
	for _, other := range docs {
		otherID, _ := other.ID()
		if otherID == selfID {
			continue
		}
		if existing, ok := other[field]; ok && document.Equals(existing, val) {
			return fmt.Sprintf("Field %s must be unique", field)
		}
	}
	return ""
}

func checkBounds(field string, num float64, rule Rule) []string {
	var errs []string
	if rule.Min != nil && num < *rule.Min {
		errs = append(errs, fmt.Sprintf("Field %s must be greater than or equal to %v", field, *rule.Min))
	}
	if rule.Max != nil && num > *rule.Max {
		errs = append(errs, fmt.Sprintf("Field %s must be less than or equal to %v", field, *rule.Max))
	}
	return errs
}

// matchAnchored matches the pattern anchored at the start of the value.
func matchAnchored(pattern, value string) bool {
	re, err := regexp.Compile(`\A(?:` + pattern + `)`)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func parseAny(value string, layouts []string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}
