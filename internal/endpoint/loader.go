package endpoint

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raw-labs/mxcp/internal/logger"
	"github.com/raw-labs/mxcp/internal/policy"
)

// LoadError is a file:line-precise loader failure (spec §4.2 step 6).
type LoadError struct {
	File    string
	Line    int
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// LoadResult is the loader's partial-load contract (spec §4.2): a caller may
// populate the registry with Loaded even when Errors is non-empty.
type LoadResult struct {
	Loaded []*Endpoint
	Errors []*LoadError
}

// HostModuleTable resolves a host-language {file, function} reference to its
// positional parameter names, standing in for the "pre-compiled module
// table supplied by the host integration layer" (spec §4.2 step 5). It is
// an external collaborator; NewLoader accepts nil when no host endpoints
// are expected to be loaded.
type HostModuleTable interface {
	Lookup(file, function string) ([]string, error)
}

// Loader discovers and validates endpoint YAML files under a project root.
// It is pure with respect to the filesystem beyond reading the YAML and
// source files it's pointed at (spec §4.2: "never starts a database session
// or opens sockets").
type Loader struct {
	Root  string
	Hosts HostModuleTable
}

func NewLoader(root string, hosts HostModuleTable) *Loader {
	return &Loader{Root: root, Hosts: hosts}
}

// Load walks Root for *.yml/*.yaml files, classifies each by root key, and
// builds the Endpoint IR (spec §4.2 steps 1-6).
func (l *Loader) Load() (*LoadResult, error) {
	result := &LoadResult{}
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}
		l.loadFile(path, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking endpoint tree %s: %w", l.Root, err)
	}
	rejectDuplicateIDs(result)
	return result, nil
}

// rejectDuplicateIDs enforces spec §3.1's "id (unique string)" invariant
// across the whole loaded set: two files declaring the same endpoint id
// would otherwise silently collide in the registry's id-keyed map, with
// whichever loaded last winning. The first file to declare an id keeps it;
// every later file claiming the same id is demoted from Loaded to a
// LoadError instead.
func rejectDuplicateIDs(result *LoadResult) {
	firstFile := make(map[string]string, len(result.Loaded))
	kept := result.Loaded[:0]
	for _, ep := range result.Loaded {
		if owner, seen := firstFile[ep.ID]; seen {
			result.Errors = append(result.Errors, &LoadError{
				File:    ep.FilePath,
				Line:    1,
				Message: fmt.Sprintf("duplicate endpoint id %q, already declared in %s", ep.ID, owner),
			})
			continue
		}
		firstFile[ep.ID] = ep.FilePath
		kept = append(kept, ep)
	}
	result.Loaded = kept
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

func (l *Loader) loadFile(path string, result *LoadResult) {
	data, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, &LoadError{File: path, Line: 1, Message: fmt.Sprintf("reading file: %v", err)})
		return
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		result.Errors = append(result.Errors, &LoadError{File: path, Line: 1, Message: err.Error()})
		return
	}
	if len(root.Content) == 0 {
		return // empty file, silently ignored
	}
	doc := root.Content[0]

	var raw rawDocument
	if err := doc.Decode(&raw); err != nil {
		result.Errors = append(result.Errors, &LoadError{File: path, Line: doc.Line, Message: err.Error()})
		return
	}

	kind, bodyLine := classify(doc, raw)
	if kind == "" {
		logger.Warnf("%s: no tool/resource/prompt root key, ignoring file", path)
		return
	}

	b := &builder{file: path, line: bodyLine, hosts: l.Hosts}
	if raw.SchemaVersion != 1 {
		b.fail("schema-version must be 1, got %d", raw.SchemaVersion)
	}

	var ep *Endpoint
	switch kind {
	case KindTool:
		ep = b.buildTool(raw.Tool)
	case KindResource:
		ep = b.buildResource(raw.Resource)
	case KindPrompt:
		ep = b.buildPrompt(raw.Prompt)
	}

	if len(b.errs) > 0 {
		result.Errors = append(result.Errors, b.errs...)
		return
	}
	ep.FilePath = path
	result.Loaded = append(result.Loaded, ep)
}

// classify determines the endpoint kind from the document's root key and
// returns the line of that key's value node, used as the base line for
// validation errors against the body (spec §4.2 step 2).
func classify(doc *yaml.Node, raw rawDocument) (Kind, int) {
	switch {
	case raw.Tool != nil:
		return KindTool, keyLine(doc, "tool")
	case raw.Resource != nil:
		return KindResource, keyLine(doc, "resource")
	case raw.Prompt != nil:
		return KindPrompt, keyLine(doc, "prompt")
	default:
		return "", 0
	}
}

// keyLine scans a mapping node's key/value pairs for key and returns the
// value node's line, falling back to the mapping node's own line.
func keyLine(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1].Line
		}
	}
	return mapping.Line
}

// compilePolicies compiles every policy condition attached to a loaded
// endpoint's header. The loader calls this once per endpoint after a
// successful parse so the registry never holds an Endpoint with an
// uncompiled condition (spec §4.6 conditions are compiled once, at load).
func compilePolicies(ep *Endpoint) error {
	in, err := policy.Compile(ep.Policies.Input)
	if err != nil {
		return fmt.Errorf("endpoint %s input policies: %w", ep.ID, err)
	}
	out, err := policy.Compile(ep.Policies.Output)
	if err != nil {
		return fmt.Errorf("endpoint %s output policies: %w", ep.ID, err)
	}
	ep.Policies.Input = in
	ep.Policies.Output = out
	return nil
}

// LoadAndCompile is the method form of the package-level LoadAndCompile
// function, satisfying reload.EndpointLoader so the reload controller can
// hold a *Loader directly when spec §9 Open Question 2's endpoint-reload
// extension is enabled.
func (l *Loader) LoadAndCompile() (*LoadResult, error) {
	return LoadAndCompile(l)
}

// LoadAndCompile runs Load and then compiles every loaded endpoint's policy
// conditions, demoting compile failures to loader errors rather than a hard
// stop so the partial-load contract still holds.
func LoadAndCompile(l *Loader) (*LoadResult, error) {
	result, err := l.Load()
	if err != nil {
		return nil, err
	}
	kept := result.Loaded[:0]
	for _, ep := range result.Loaded {
		if err := compilePolicies(ep); err != nil {
			result.Errors = append(result.Errors, &LoadError{File: ep.FilePath, Line: 1, Message: err.Error()})
			continue
		}
		kept = append(kept, ep)
	}
	result.Loaded = kept
	return result, nil
}
