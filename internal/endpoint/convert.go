package endpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/raw-labs/mxcp/internal/policy"
	"github.com/raw-labs/mxcp/internal/types"
)

var paramNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var uriTemplateVarRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// builder accumulates validation errors against one file while converting
// its raw YAML body into an Endpoint.
type builder struct {
	file  string
	line  int
	hosts HostModuleTable
	errs  []*LoadError
}

func (b *builder) fail(format string, args ...any) {
	b.errs = append(b.errs, &LoadError{File: b.file, Line: b.line, Message: fmt.Sprintf(format, args...)})
}

func toTypeSpec(r *rawType) *types.TypeSpec {
	if r == nil {
		return nil
	}
	spec := &types.TypeSpec{
		Kind:                 types.Kind(r.Type),
		Description:          r.Description,
		Default:              r.Default,
		HasDefault:           r.defaultSet,
		Examples:             r.Examples,
		Enum:                 r.Enum,
		Sensitive:            r.Sensitive,
		Format:               types.Format(r.Format),
		MinLength:            r.MinLength,
		MaxLength:            r.MaxLength,
		Minimum:              r.Minimum,
		Maximum:              r.Maximum,
		ExclusiveMinimum:     r.ExclusiveMinimum,
		ExclusiveMaximum:     r.ExclusiveMaximum,
		MultipleOf:           r.MultipleOf,
		Items:                toTypeSpec(r.Items),
		MinItems:             r.MinItems,
		MaxItems:             r.MaxItems,
		UniqueItems:          r.UniqueItems,
		Required:             r.Required,
		AdditionalProperties: r.AdditionalProperties,
	}
	if len(r.Properties) > 0 {
		spec.Properties = make(map[string]*types.TypeSpec, len(r.Properties))
		for name, child := range r.Properties {
			spec.Properties[name] = toTypeSpec(child)
			spec.PropertyOrder = append(spec.PropertyOrder, name)
		}
	}
	return spec
}

func toPolicies(raw rawPolicies) policy.Policies {
	return policy.Policies{
		Input:  toPolicyList(raw.Input, policy.StageInput),
		Output: toPolicyList(raw.Output, policy.StageOutput),
	}
}

func toPolicyList(raw []rawPolicy, stage policy.Stage) []policy.Policy {
	if len(raw) == 0 {
		return nil
	}
	out := make([]policy.Policy, len(raw))
	for i, p := range raw {
		out[i] = policy.Policy{
			Stage:     stage,
			Condition: p.Condition,
			Action:    policy.Action(p.Action),
			Fields:    p.Fields,
			Reason:    p.Reason,
		}
	}
	return out
}

func (b *builder) validateParameters(raw []rawParameter) []Parameter {
	seen := make(map[string]bool, len(raw))
	params := make([]Parameter, 0, len(raw))
	for _, p := range raw {
		if !paramNameRe.MatchString(p.Name) {
			b.fail("parameter name %q does not match %s", p.Name, paramNameRe.String())
			continue
		}
		if seen[p.Name] {
			b.fail("duplicate parameter name %q", p.Name)
			continue
		}
		seen[p.Name] = true
		rt := p.rawType
		params = append(params, Parameter{Name: p.Name, Spec: toTypeSpec(&rt)})
	}
	return params
}

func (b *builder) validateSource(raw rawSource) Source {
	hasInline := raw.InlineCode != ""
	hasFile := raw.FilePath != ""
	if hasInline == hasFile {
		b.fail("source must set exactly one of inline_code or file_path")
	}
	lang := Language(raw.Language)
	if lang != LanguageSQL && lang != LanguageHost {
		b.fail("source.language must be %q or %q, got %q", LanguageSQL, LanguageHost, raw.Language)
	}
	if lang == LanguageHost && raw.Function == "" {
		b.fail("host-language source requires a function symbol")
	}
	src := Source{
		InlineCode:   raw.InlineCode,
		FilePath:     raw.FilePath,
		Language:     lang,
		HostFunction: raw.Function,
		Async:        raw.Async,
	}
	b.resolveCode(&src)
	return src
}

// resolveCode implements spec §4.2 step 4 ("resolve source.file paths; read
// code") for SQL endpoints: file_path is resolved relative to the owning
// YAML file's directory and read eagerly, since the loader is otherwise
// pure with respect to the filesystem beyond this one read. Host-language
// file_path instead names a module resolved later by the host module
// table, so its contents are never read here.
func (b *builder) resolveCode(src *Source) {
	if src.Language != LanguageSQL {
		return
	}
	if src.InlineCode != "" {
		src.Code = src.InlineCode
		return
	}
	if src.FilePath == "" {
		return
	}
	resolved := src.FilePath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(b.file), src.FilePath)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		b.fail("reading source.file_path %q: %v", src.FilePath, err)
		return
	}
	src.Code = string(data)
}

// validateHostSignature enforces spec §3.1's "function signature subset"
// invariant: every positional parameter name the host table reports for
// {file, function} must also be a declared endpoint parameter.
func (b *builder) validateHostSignature(src Source, declared []Parameter) {
	if b.hosts == nil || src.Language != LanguageHost {
		return
	}
	names, err := b.hosts.Lookup(src.FilePath, src.HostFunction)
	if err != nil {
		b.fail("resolving host function %s:%s: %v", src.FilePath, src.HostFunction, err)
		return
	}
	declaredSet := make(map[string]bool, len(declared))
	for _, p := range declared {
		declaredSet[p.Name] = true
	}
	for _, n := range names {
		if !declaredSet[n] {
			b.fail("host function %s parameter %q is not a declared endpoint parameter", src.HostFunction, n)
		}
	}
}

func toTests(raw []rawTest) []TestCase {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TestCase, len(raw))
	for i, t := range raw {
		out[i] = TestCase{Name: t.Name, Args: t.Args, Expect: t.Expect}
	}
	return out
}

func enabledOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func (b *builder) buildTool(doc *rawToolBody) *Endpoint {
	params := b.validateParameters(doc.Parameters)
	src := b.validateSource(doc.Source)
	b.validateHostSignature(src, params)
	if doc.Name == "" {
		b.fail("tool endpoint requires a name")
	}
	return &Endpoint{
		ID:          doc.Name,
		Kind:        KindTool,
		Name:        doc.Name,
		Description: doc.Description,
		Enabled:     enabledOrDefault(doc.Enabled),
		Tags:        doc.Tags,
		Annotations: Annotations{
			ReadOnly:    doc.Annotations.ReadOnly,
			Destructive: doc.Annotations.Destructive,
			Idempotent:  doc.Annotations.Idempotent,
			OpenWorld:   doc.Annotations.OpenWorld,
			Title:       doc.Annotations.Title,
		},
		Parameters: params,
		ReturnType: toTypeSpec(doc.Return),
		Policies:   toPolicies(doc.Policies),
		Source:     src,
		Tests:      toTests(doc.Tests),
	}
}

func (b *builder) buildResource(doc *rawResourceBody) *Endpoint {
	params := b.validateParameters(doc.Parameters)
	src := b.validateSource(doc.Source)
	b.validateHostSignature(src, params)
	if doc.Name == "" {
		b.fail("resource endpoint requires a name")
	}
	b.validateURITemplate(doc.URI, params)
	return &Endpoint{
		ID:          doc.Name,
		Kind:        KindResource,
		Name:        doc.Name,
		Description: doc.Description,
		Enabled:     enabledOrDefault(doc.Enabled),
		Tags:        doc.Tags,
		Parameters:  params,
		ReturnType:  toTypeSpec(doc.Return),
		Policies:    toPolicies(doc.Policies),
		Source:      src,
		Tests:       toTests(doc.Tests),
		URITemplate: doc.URI,
		MIMEType:    doc.MimeType,
	}
}

func (b *builder) validateURITemplate(uri string, params []Parameter) {
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}
	for _, m := range uriTemplateVarRe.FindAllStringSubmatch(uri, -1) {
		name := m[1]
		if !declared[name] {
			b.fail("resource uri_template references undeclared parameter %q", name)
		}
	}
	if !strings.Contains(uri, "://") {
		b.fail("resource uri %q must be of the form scheme://segment/{param}/...", uri)
	}
}

func (b *builder) buildPrompt(doc *rawPromptBody) *Endpoint {
	params := b.validateParameters(doc.Parameters)
	if doc.Name == "" {
		b.fail("prompt endpoint requires a name")
	}
	messages := make([]Message, len(doc.Messages))
	for i, m := range doc.Messages {
		messages[i] = Message{Role: m.Role, ContentType: m.Type, TemplateText: m.Prompt}
	}
	return &Endpoint{
		ID:          doc.Name,
		Kind:        KindPrompt,
		Name:        doc.Name,
		Description: doc.Description,
		Enabled:     true,
		Tags:        doc.Tags,
		Parameters:  params,
		Messages:    messages,
	}
}
