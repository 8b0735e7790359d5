package types

// ValidateOutput applies the same coercion rules as ValidateAndCoerce but is
// named separately to mark the output-side call site (spec §4.1): the
// top-level shape requirement ("object must satisfy the schema directly",
// "array: each element satisfies items", "scalar: a single row/column") is
// enforced by the runner (C5) when it maps SQL rows/columns onto
// return_type before handing the assembled value to this function, so at
// the type-system level output validation is identical to input validation
// over the already-assembled value.
func ValidateOutput(value any, spec *TypeSpec) (any, []*ValidationError) {
	return ValidateAndCoerce(value, spec)
}
