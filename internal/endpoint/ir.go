// Package endpoint implements C2 (the endpoint loader: YAML discovery,
// content classification, schema validation, IR construction) and defines
// the Endpoint IR itself (spec §3.1).
package endpoint

import (
	"github.com/raw-labs/mxcp/internal/policy"
	"github.com/raw-labs/mxcp/internal/types"
)

// Kind is the tagged-variant discriminator of an Endpoint.
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// Language identifies how Source.Code should be executed (spec §3.1).
type Language string

const (
	LanguageSQL  Language = "sql"
	LanguageHost Language = "host"
)

// Annotations are behavioral hints a client may use to decide how to
// present or gate a tool call (spec §3.1).
type Annotations struct {
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
	OpenWorld   bool
	Title       string
}

// Source is the endpoint body: exactly one of InlineCode or FilePath is set
// (spec invariant "source.inline_code XOR source.file_path"). For host
// endpoints, HostFunction names the symbol resolved at load time within the
// file named by FilePath/InlineCode's owning module.
type Source struct {
	InlineCode   string
	FilePath     string
	Language     Language
	HostFunction string

	// Code is the resolved SQL text for Language==LanguageSQL: InlineCode
	// verbatim, or FilePath's contents read at load time. Unset for host
	// endpoints, whose code lives in the host module instead.
	Code string

	// Async marks a host function as cooperative-async (spec §4.5): the
	// host runner awaits it on the executor's scheduler instead of
	// dispatching it to a worker-pool goroutine. Meaningless for SQL
	// sources.
	Async bool
}

// Parameter is one declared, named, typed endpoint input.
type Parameter struct {
	Name string
	Spec *types.TypeSpec
}

// Policies groups the input-stage and output-stage policy lists (spec §3.3).
type Policies struct {
	Input  []policy.Policy
	Output []policy.Policy
}

// Message is one templated prompt message (spec §3.1, prompt case).
type Message struct {
	Role         string
	ContentType  string
	TemplateText string
}

// TestCase is a reference test fixture carried in the IR for tooling use; it
// is never consulted by the runtime executor (spec §3.1: "not used at
// runtime").
type TestCase struct {
	Name   string
	Args   map[string]any
	Expect map[string]any
}

// Endpoint is the unified IR for a tool, resource, or prompt (spec §3.1).
type Endpoint struct {
	ID          string
	Kind        Kind
	Name        string
	Description string
	Enabled     bool
	Tags        []string
	Annotations Annotations
	Parameters  []Parameter
	ReturnType  *types.TypeSpec // nil for prompts
	Policies    Policies
	Source      Source
	Tests       []TestCase

	// Resource-only.
	URITemplate string
	MIMEType    string

	// Prompt-only.
	Messages []Message

	// FilePath is the YAML file this endpoint was loaded from, used for
	// precise file:line error reporting and for hot-reload diffing.
	FilePath string
}

// Parameter looks up a declared parameter by name.
func (e *Endpoint) Parameter(name string) (Parameter, bool) {
	for _, p := range e.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ParameterNames returns the declared parameter names in declaration order.
func (e *Endpoint) ParameterNames() []string {
	names := make([]string, len(e.Parameters))
	for i, p := range e.Parameters {
		names[i] = p.Name
	}
	return names
}

// ParametersTypeSpec assembles the endpoint's parameters into a single
// object TypeSpec so the whole input map can be validated in one
// ValidateAndCoerce call (spec §4.1/§8 property 1).
func (e *Endpoint) ParametersTypeSpec() *types.TypeSpec {
	props := make(map[string]*types.TypeSpec, len(e.Parameters))
	var required []string
	for _, p := range e.Parameters {
		props[p.Name] = p.Spec
		if !p.Spec.HasDefault {
			required = append(required, p.Name)
		}
	}
	allowed := false
	return &types.TypeSpec{
		Kind:                 types.KindObject,
		Properties:           props,
		Required:             required,
		AdditionalProperties: &allowed,
	}
}
