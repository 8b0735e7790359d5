package policy

import (
	"fmt"
	"strings"

	"github.com/raw-labs/mxcp/internal/types"
)

// filterFields removes each dotted field path from value, applying to every
// element when an array is encountered mid-path (spec §4.6). Missing paths
// are silently ignored.
func filterFields(value any, fields []string) any {
	for _, f := range fields {
		value = applyPath(value, strings.Split(f, "."), deleteLeaf)
	}
	return value
}

// maskFields replaces each dotted field path's value with "****" (spec
// §4.6). Missing paths are silently ignored.
func maskFields(value any, fields []string) any {
	for _, f := range fields {
		value = applyPath(value, strings.Split(f, "."), maskLeaf)
	}
	return value
}

type leafOp func(m map[string]any, key string)

func deleteLeaf(m map[string]any, key string) { delete(m, key) }

func maskLeaf(m map[string]any, key string) {
	if _, present := m[key]; present {
		m[key] = "****"
	}
}

// applyPath walks value along segments; when it encounters an array before
// the path is exhausted, op is applied to the same field on every element
// (spec: "on arrays the action applies to the same-named field on each
// element"). Segments that don't resolve are ignored rather than erroring.
func applyPath(value any, segments []string, op leafOp) any {
	if len(segments) == 0 {
		return value
	}
	switch v := value.(type) {
	case map[string]any:
		if len(segments) == 1 {
			op(v, segments[0])
			return v
		}
		child, ok := v[segments[0]]
		if !ok {
			return v
		}
		v[segments[0]] = applyPath(child, segments[1:], op)
		return v
	case []any:
		for i, elem := range v {
			v[i] = applyPath(elem, segments, op)
		}
		return v
	default:
		return value
	}
}

// filterSensitive removes every value at a path whose declared TypeSpec has
// Sensitive=true (spec §4.6, via C1's walk) and returns the dotted paths it
// removed for the audit record's output_redacted_summary.
//
// This mirrors types.WalkSensitive's traversal shape rather than calling it
// directly, because here the walk must mutate (delete) the container it is
// visiting; WalkSensitive's read-only Visitor callback has no parent handle
// to mutate through.
func filterSensitive(value any, spec *types.TypeSpec) (any, []string) {
	var removed []string
	result := removeSensitive(value, spec, "$", &removed)
	return result, removed
}

func removeSensitive(value any, spec *types.TypeSpec, path string, removed *[]string) any {
	if spec == nil {
		return value
	}
	if spec.Sensitive {
		*removed = append(*removed, path)
		return nil
	}
	switch spec.Kind {
	case types.KindArray:
		arr, ok := value.([]any)
		if !ok || spec.Items == nil {
			return value
		}
		for i, elem := range arr {
			arr[i] = removeSensitive(elem, spec.Items, fmt.Sprintf("%s[%d]", path, i), removed)
		}
		return arr
	case types.KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return value
		}
		for name, child := range spec.Properties {
			v, present := obj[name]
			if !present {
				continue
			}
			childPath := path + "." + name
			result := removeSensitive(v, child, childPath, removed)
			if child.Sensitive {
				delete(obj, name)
				continue
			}
			obj[name] = result
		}
		return obj
	default:
		return value
	}
}
