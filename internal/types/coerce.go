package types

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateAndCoerce validates value against spec and returns the coerced
// value plus any accumulated errors (spec §4.1). Coercion still proceeds
// best-effort after an error so a caller can report every problem at once,
// matching the "[error]" (plural) return shape in the spec.
func ValidateAndCoerce(value any, spec *TypeSpec) (any, []*ValidationError) {
	return validateAndCoerce(value, spec, "$")
}

func validateAndCoerce(value any, spec *TypeSpec, path string) (any, []*ValidationError) {
	if spec == nil {
		return value, nil
	}

	if value == nil {
		if spec.HasDefault {
			value = spec.Default
		} else {
			// Absence is only valid for object properties (handled by the
			// caller via Required); a bare nil at this level is a type
			// mismatch against every kind except when a default exists.
			return nil, []*ValidationError{newErr(path, ErrorTypeMismatch, "value is missing and %s has no default", spec.Kind)}
		}
	}

	switch spec.Kind {
	case KindString:
		return coerceString(value, spec, path)
	case KindNumber:
		return coerceNumber(value, spec, path, false)
	case KindInteger:
		return coerceNumber(value, spec, path, true)
	case KindBoolean:
		return coerceBoolean(value, path)
	case KindArray:
		return coerceArray(value, spec, path)
	case KindObject:
		return coerceObject(value, spec, path)
	default:
		return value, []*ValidationError{newErr(path, ErrorTypeMismatch, "unknown kind %q", spec.Kind)}
	}
}

func coerceString(value any, spec *TypeSpec, path string) (any, []*ValidationError) {
	s, ok := value.(string)
	if !ok {
		return value, []*ValidationError{newErr(path, ErrorTypeMismatch, "expected string, got %T", value)}
	}

	var errs []*ValidationError

	if spec.Format != "" {
		if err := validateFormat(s, spec.Format); err != nil {
			errs = append(errs, newErr(path, ErrorFormatViolation, "%s", err))
		}
	}
	if spec.MinLength != nil && len(s) < *spec.MinLength {
		errs = append(errs, newErr(path, ErrorRangeViolation, "length %d is below minLength %d", len(s), *spec.MinLength))
	}
	if spec.MaxLength != nil && len(s) > *spec.MaxLength {
		errs = append(errs, newErr(path, ErrorRangeViolation, "length %d exceeds maxLength %d", len(s), *spec.MaxLength))
	}
	errs = append(errs, validateEnum(s, spec, path)...)

	return s, errs
}

func validateFormat(s string, format Format) error {
	switch format {
	case FormatEmail:
		if !emailRe.MatchString(s) {
			return fmt.Errorf("%q is not a valid email", s)
		}
	case FormatURI:
		if s == "" {
			return fmt.Errorf("uri must not be empty")
		}
	case FormatDate:
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return fmt.Errorf("%q is not a valid date: %w", s, err)
		}
	case FormatTime:
		if _, err := time.Parse("15:04:05", s); err != nil {
			return fmt.Errorf("%q is not a valid time: %w", s, err)
		}
	case FormatDateTime:
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("%q is not a valid date-time: %w", s, err)
		}
	case FormatDuration:
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%q is not a valid duration: %w", s, err)
		}
	case FormatTimestamp:
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("%q is not a valid timestamp: %w", s, err)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

// coerceNumber accepts float64 (decoded JSON numbers) and int-family values,
// coercing integers for `number` and requiring an integral value for
// `integer` (spec: "accept integers for number").
func coerceNumber(value any, spec *TypeSpec, path string, integer bool) (any, []*ValidationError) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return value, []*ValidationError{newErr(path, ErrorTypeMismatch, "expected number, got %T", value)}
	}

	var errs []*ValidationError
	if integer && f != math.Trunc(f) {
		errs = append(errs, newErr(path, ErrorTypeMismatch, "expected integer, got non-integral %v", f))
	}

	if spec.Minimum != nil && f < *spec.Minimum {
		errs = append(errs, newErr(path, ErrorRangeViolation, "%v is below minimum %v", f, *spec.Minimum))
	}
	if spec.Maximum != nil && f > *spec.Maximum {
		errs = append(errs, newErr(path, ErrorRangeViolation, "%v exceeds maximum %v", f, *spec.Maximum))
	}
	if spec.ExclusiveMinimum != nil && f <= *spec.ExclusiveMinimum {
		errs = append(errs, newErr(path, ErrorRangeViolation, "%v must exceed exclusiveMinimum %v", f, *spec.ExclusiveMinimum))
	}
	if spec.ExclusiveMaximum != nil && f >= *spec.ExclusiveMaximum {
		errs = append(errs, newErr(path, ErrorRangeViolation, "%v must be below exclusiveMaximum %v", f, *spec.ExclusiveMaximum))
	}
	if spec.MultipleOf != nil && *spec.MultipleOf != 0 {
		ratio := f / *spec.MultipleOf
		if math.Abs(ratio-math.Round(ratio)) > 1e-9 {
			errs = append(errs, newErr(path, ErrorRangeViolation, "%v is not a multiple of %v", f, *spec.MultipleOf))
		}
	}
	errs = append(errs, validateEnum(f, spec, path)...)

	if integer {
		return int64(f), errs
	}
	return f, errs
}

func coerceBoolean(value any, path string) (any, []*ValidationError) {
	b, ok := value.(bool)
	if !ok {
		return value, []*ValidationError{newErr(path, ErrorTypeMismatch, "expected boolean, got %T", value)}
	}
	return b, nil
}

func coerceArray(value any, spec *TypeSpec, path string) (any, []*ValidationError) {
	arr, ok := value.([]any)
	if !ok {
		return value, []*ValidationError{newErr(path, ErrorTypeMismatch, "expected array, got %T", value)}
	}
	if spec.Items == nil {
		return value, []*ValidationError{newErr(path, ErrorTypeMismatch, "array type missing required items spec")}
	}

	var errs []*ValidationError
	out := make([]any, len(arr))
	seen := make(map[string]bool, len(arr))
	for i, elem := range arr {
		coerced, elemErrs := validateAndCoerce(elem, spec.Items, indexPath(path, i))
		out[i] = coerced
		errs = append(errs, elemErrs...)
		if spec.UniqueItems {
			key := fmt.Sprintf("%v", coerced)
			if seen[key] {
				errs = append(errs, newErr(indexPath(path, i), ErrorRangeViolation, "duplicate element violates uniqueItems"))
			}
			seen[key] = true
		}
	}
	if spec.MinItems != nil && len(out) < *spec.MinItems {
		errs = append(errs, newErr(path, ErrorRangeViolation, "array has %d items, below minItems %d", len(out), *spec.MinItems))
	}
	if spec.MaxItems != nil && len(out) > *spec.MaxItems {
		errs = append(errs, newErr(path, ErrorRangeViolation, "array has %d items, exceeds maxItems %d", len(out), *spec.MaxItems))
	}
	return out, errs
}

func coerceObject(value any, spec *TypeSpec, path string) (any, []*ValidationError) {
	obj, ok := value.(map[string]any)
	if !ok {
		return value, []*ValidationError{newErr(path, ErrorTypeMismatch, "expected object, got %T", value)}
	}

	var errs []*ValidationError
	out := make(map[string]any, len(obj))

	for name, child := range spec.Properties {
		childVal, present := obj[name]
		if !present {
			if child.HasDefault {
				out[name] = child.Default
				continue
			}
			if spec.isRequired(name) {
				errs = append(errs, newErr(childPath(path, name), ErrorMissingRequired, "required property %q is missing", name))
			}
			continue
		}
		coerced, childErrs := validateAndCoerce(childVal, child, childPath(path, name))
		out[name] = coerced
		errs = append(errs, childErrs...)
	}

	if !spec.additionalPropertiesAllowed() {
		for name, v := range obj {
			if _, declared := spec.Properties[name]; !declared {
				errs = append(errs, newErr(childPath(path, name), ErrorUnknownProperty, "property %q is not declared and additionalProperties=false", name))
			} else {
				_ = v
			}
		}
	} else {
		// additionalProperties=true: pass undeclared properties through
		// unchanged, matching the resolved Open Question default.
		for name, v := range obj {
			if _, declared := spec.Properties[name]; !declared {
				out[name] = v
			}
		}
	}

	return out, errs
}

// validateEnum reports an EnumViolation when spec.Enum is non-empty and v is
// not a member. Comparison is by formatted string to keep it agnostic of
// the concrete Go representation (float64 vs int64 vs string).
func validateEnum(v any, spec *TypeSpec, path string) []*ValidationError {
	if len(spec.Enum) == 0 {
		return nil
	}
	target := fmt.Sprintf("%v", v)
	for _, e := range spec.Enum {
		if fmt.Sprintf("%v", e) == target {
			return nil
		}
	}
	return []*ValidationError{newErr(path, ErrorEnumViolation, "%v is not one of the allowed values", v)}
}
