package endpoint

import (
	"fmt"
	"strings"
)

// RenderMessage substitutes `{{param}}` placeholders in a prompt message's
// template text with values from args (Open Question #3: minimal pure
// substitution, no conditionals or loops — matching the restricted,
// reflection-free posture the rest of the type system takes). Placeholders
// whose name isn't in args are left verbatim so a missing binding is visible
// rather than silently blanked.
func RenderMessage(template string, args map[string]any) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "{{")
		if start == -1 {
			b.WriteString(template[i:])
			break
		}
		start += i
		b.WriteString(template[i:start])
		end := strings.Index(template[start:], "}}")
		if end == -1 {
			b.WriteString(template[start:])
			break
		}
		end += start
		name := strings.TrimSpace(template[start+2 : end])
		if v, ok := args[name]; ok {
			b.WriteString(formatArg(v))
		} else {
			b.WriteString(template[start : end+2])
		}
		i = end + 2
	}
	return b.String()
}

func formatArg(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
