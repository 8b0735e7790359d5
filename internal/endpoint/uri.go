package endpoint

import (
	"fmt"
	"strings"
)

// ExtractTemplateParams matches actualURI against template (spec §3.1's
// "scheme://segment/{param}/..." form) and returns the bound parameter
// values, keyed by the names uriTemplateVarRe identified at load time. Both
// sides are split on "/" after stripping the scheme; segment counts must
// match exactly, mirroring the template's own declared shape since the
// loader already rejected any template whose {param} isn't a declared
// parameter.
func ExtractTemplateParams(template, actualURI string) (map[string]any, error) {
	tScheme, tRest, ok := strings.Cut(template, "://")
	if !ok {
		return nil, fmt.Errorf("malformed uri template %q", template)
	}
	aScheme, aRest, ok := strings.Cut(actualURI, "://")
	if !ok || aScheme != tScheme {
		return nil, fmt.Errorf("uri %q does not match template %q", actualURI, template)
	}

	tSegs := strings.Split(tRest, "/")
	aSegs := strings.Split(aRest, "/")
	if len(tSegs) != len(aSegs) {
		return nil, fmt.Errorf("uri %q does not match template %q", actualURI, template)
	}

	params := make(map[string]any, len(tSegs))
	for i, seg := range tSegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
			params[name] = aSegs[i]
			continue
		}
		if seg != aSegs[i] {
			return nil, fmt.Errorf("uri %q does not match template %q at segment %d", actualURI, template, i)
		}
	}
	return params, nil
}

// RenderMessages renders every message template of a prompt endpoint
// against args (spec §3.1 prompt case, §9 Open Question 3).
func RenderMessages(ep *Endpoint, args map[string]any) ([]Message, error) {
	out := make([]Message, len(ep.Messages))
	for i, m := range ep.Messages {
		out[i] = Message{
			Role:         m.Role,
			ContentType:  m.ContentType,
			TemplateText: RenderMessage(m.TemplateText, args),
		}
	}
	return out, nil
}
