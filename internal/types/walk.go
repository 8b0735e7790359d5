package types

// Visitor is invoked exactly at sensitive nodes during WalkSensitive.
type Visitor func(path string, value any)

// WalkSensitive performs a DFS over value guided by spec, invoking visit at
// every node whose declared TypeSpec has Sensitive=true (spec §4.1). Its
// caller here is SensitivePaths; the policy engine's
// filter_sensitive_fields action (C6) and the audit pipeline's redaction
// pass (C8) use their own walks of the same shape.
func WalkSensitive(value any, spec *TypeSpec, visit Visitor) {
	walkSensitive(value, spec, "$", visit)
}

func walkSensitive(value any, spec *TypeSpec, path string, visit Visitor) {
	if spec == nil {
		return
	}
	if spec.Sensitive {
		visit(path, value)
		return
	}

	switch spec.Kind {
	case KindArray:
		arr, ok := value.([]any)
		if !ok || spec.Items == nil {
			return
		}
		for i, elem := range arr {
			walkSensitive(elem, spec.Items, indexPath(path, i), visit)
		}
	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return
		}
		for name, child := range spec.Properties {
			if v, present := obj[name]; present {
				walkSensitive(v, child, childPath(path, name), visit)
			}
		}
	}
}

// SensitivePaths returns every path WalkSensitive would visit for spec and
// value, as a convenience for callers that need the set rather than a
// callback (e.g. tests asserting "no secret leaks").
func SensitivePaths(value any, spec *TypeSpec) []string {
	var paths []string
	WalkSensitive(value, spec, func(path string, _ any) {
		paths = append(paths, path)
	})
	return paths
}
