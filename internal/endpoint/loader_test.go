package endpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadToolEndpoint(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "add.yml", `
schema-version: 1
tool:
  name: add
  description: adds two integers
  parameters:
    - name: a
      type: integer
    - name: b
      type: integer
  return:
    type: integer
  source:
    inline_code: "SELECT $a + $b AS r"
    language: sql
`)
	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Loaded, 1)
	ep := result.Loaded[0]
	assert.Equal(t, "add", ep.ID)
	assert.Equal(t, KindTool, ep.Kind)
	require.Len(t, ep.Parameters, 2)
	assert.Equal(t, LanguageSQL, ep.Source.Language)
}

func TestLoadResolvesSQLFilePath(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "query.sql", "SELECT $a + $b AS r")
	writeYAML(t, dir, "add.yml", `
schema-version: 1
tool:
  name: add
  parameters:
    - name: a
      type: integer
    - name: b
      type: integer
  return:
    type: integer
  source:
    file_path: query.sql
    language: sql
`)
	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Loaded, 1)
	assert.Equal(t, "SELECT $a + $b AS r", result.Loaded[0].Source.Code)
}

func TestLoadRejectsBadParameterName(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "bad.yml", `
schema-version: 1
tool:
  name: broken
  parameters:
    - name: "1-bad"
      type: string
  source:
    inline_code: "SELECT 1"
    language: sql
`)
	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Loaded)
	require.NotEmpty(t, result.Errors)
}

func TestLoadRejectsSourceXORViolation(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "bad.yml", `
schema-version: 1
tool:
  name: broken
  source:
    inline_code: "SELECT 1"
    file_path: "query.sql"
    language: sql
`)
	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Loaded)
	require.NotEmpty(t, result.Errors)
}

func TestLoadResourceURITemplateMustDeclareParams(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "res.yml", `
schema-version: 1
resource:
  name: customer
  uri: "customers://record/{id}"
  mime_type: application/json
  source:
    inline_code: "SELECT * FROM customers WHERE id = $id"
    language: sql
`)
	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Loaded)
	require.NotEmpty(t, result.Errors)

	writeYAML(t, dir, "res.yml", `
schema-version: 1
resource:
  name: customer
  uri: "customers://record/{id}"
  mime_type: application/json
  parameters:
    - name: id
      type: string
  source:
    inline_code: "SELECT * FROM customers WHERE id = $id"
    language: sql
`)
	result, err = NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Loaded, 1)
}

func TestLoadIgnoresFileWithoutRootKey(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "notes.yml", "description: just some notes\n")
	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Loaded)
	assert.Empty(t, result.Errors)
}

func TestLoadPromptEndpoint(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "greet.yml", `
schema-version: 1
prompt:
  name: greet
  parameters:
    - name: who
      type: string
  messages:
    - role: user
      type: text
      prompt: "hello {{who}}"
`)
	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Loaded, 1)
	ep := result.Loaded[0]
	assert.Equal(t, KindPrompt, ep.Kind)
	require.Len(t, ep.Messages, 1)
	assert.Equal(t, "hello {{who}}", ep.Messages[0].TemplateText)
}

func TestLoadHostEndpointValidatesSignature(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "compute.yml", `
schema-version: 1
tool:
  name: compute
  parameters:
    - name: x
      type: integer
  source:
    file_path: handlers.py
    language: host
    function: compute
`)
	hosts := NewStaticHostTable()
	hosts.Register("handlers.py", "compute", []string{"x", "y"})
	result, err := NewLoader(dir, hosts).Load()
	require.NoError(t, err)
	assert.Empty(t, result.Loaded)
	require.NotEmpty(t, result.Errors)

	hosts2 := NewStaticHostTable()
	hosts2.Register("handlers.py", "compute", []string{"x"})
	result2, err := NewLoader(dir, hosts2).Load()
	require.NoError(t, err)
	assert.Empty(t, result2.Errors)
	require.Len(t, result2.Loaded, 1)
}

func TestRenderMessageSubstitutesParams(t *testing.T) {
	out := RenderMessage("hello {{who}}, you are {{age}}", map[string]any{"who": "Ada", "age": int64(30)})
	assert.Equal(t, "hello Ada, you are 30", out)
}

func TestRenderMessageLeavesMissingPlaceholderVerbatim(t *testing.T) {
	out := RenderMessage("hello {{who}}", map[string]any{})
	assert.Equal(t, "hello {{who}}", out)
}

func TestLoadAndCompileCompilesPolicies(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "employee.yml", `
schema-version: 1
tool:
  name: employee
  parameters:
    - name: id
      type: string
  return:
    type: object
    properties:
      ssn:
        type: string
        sensitive: true
  source:
    inline_code: "SELECT * FROM employees WHERE id = $id"
    language: sql
  policies:
    input:
      - condition: "user.role == 'guest'"
        action: deny
        reason: "no guests"
`)
	result, err := LoadAndCompile(NewLoader(dir, nil))
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Loaded, 1)
	require.Len(t, result.Loaded[0].Policies.Input, 1)
}

func TestLoadRejectsDuplicateEndpointID(t *testing.T) {
	dir := t.TempDir()
	body := `
schema-version: 1
tool:
  name: add
  parameters:
    - name: a
      type: integer
  return:
    type: integer
  source:
    inline_code: "SELECT $a AS r"
    language: sql
`
	writeYAML(t, dir, "a.yml", body)
	writeYAML(t, dir, "b.yml", body)

	result, err := NewLoader(dir, nil).Load()
	require.NoError(t, err)
	require.Len(t, result.Loaded, 1, "only the first file to declare the id keeps it")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), `duplicate endpoint id "add"`)
}
