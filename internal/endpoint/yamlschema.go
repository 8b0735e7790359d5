package endpoint

import "gopkg.in/yaml.v3"

// Raw YAML shapes, decoded once per file before conversion to the Endpoint
// IR (spec §6.1). Field names mirror the bit-compatible schema summary
// exactly; validation happens in convert.go, not here.

type rawDocument struct {
	SchemaVersion int            `yaml:"schema-version"`
	Metadata      map[string]any `yaml:"metadata"`
	Tool          *rawToolBody   `yaml:"tool"`
	Resource      *rawResourceBody `yaml:"resource"`
	Prompt        *rawPromptBody `yaml:"prompt"`
}

type rawAnnotations struct {
	ReadOnly    bool   `yaml:"readOnly"`
	Destructive bool   `yaml:"destructive"`
	Idempotent  bool   `yaml:"idempotent"`
	OpenWorld   bool   `yaml:"openWorld"`
	Title       string `yaml:"title"`
}

type rawSource struct {
	InlineCode string `yaml:"inline_code"`
	FilePath   string `yaml:"file_path"`
	Language   string `yaml:"language"`
	Function   string `yaml:"function"`
	Async      bool   `yaml:"async"`
}

type rawType struct {
	Type                 string              `yaml:"type"`
	Description          string              `yaml:"description"`
	Default              any                 `yaml:"default"`
	Examples             []any               `yaml:"examples"`
	Enum                 []any               `yaml:"enum"`
	Sensitive            bool                `yaml:"sensitive"`
	Format               string              `yaml:"format"`
	MinLength            *int                `yaml:"minLength"`
	MaxLength            *int                `yaml:"maxLength"`
	Minimum              *float64            `yaml:"minimum"`
	Maximum              *float64            `yaml:"maximum"`
	ExclusiveMinimum     *float64            `yaml:"exclusiveMinimum"`
	ExclusiveMaximum     *float64            `yaml:"exclusiveMaximum"`
	MultipleOf           *float64            `yaml:"multipleOf"`
	Items                *rawType            `yaml:"items"`
	MinItems             *int                `yaml:"minItems"`
	MaxItems             *int                `yaml:"maxItems"`
	UniqueItems          bool                `yaml:"uniqueItems"`
	Properties           map[string]*rawType `yaml:"properties"`
	Required             []string            `yaml:"required"`
	AdditionalProperties *bool               `yaml:"additionalProperties"`

	// defaultSet distinguishes "no default key present" from "default: null";
	// Default alone can't, since both decode to a nil Default.
	defaultSet bool
}

// UnmarshalYAML decodes the declared fields and separately records whether a
// "default" key was present in the document, which YAML decoding into `any`
// cannot distinguish from an absent key.
func (t *rawType) UnmarshalYAML(node *yaml.Node) error {
	type alias rawType
	var a alias
	if err := node.Decode(&a); err != nil {
		return err
	}
	*t = rawType(a)
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "default" {
			t.defaultSet = true
			break
		}
	}
	return nil
}

type rawParameter struct {
	Name string
	rawType
}

// UnmarshalYAML decodes both the parameter name and the inline TypeSpec
// fields from the same mapping node. A plain ",inline" tag can't be used
// here because rawType.UnmarshalYAML (needed for defaultSet) is bypassed by
// yaml.v3 for inlined fields, so the node is decoded twice instead.
func (p *rawParameter) UnmarshalYAML(node *yaml.Node) error {
	var named struct {
		Name string `yaml:"name"`
	}
	if err := node.Decode(&named); err != nil {
		return err
	}
	var rt rawType
	if err := rt.UnmarshalYAML(node); err != nil {
		return err
	}
	p.Name = named.Name
	p.rawType = rt
	return nil
}

type rawPolicy struct {
	Condition string   `yaml:"condition"`
	Action    string   `yaml:"action"`
	Reason    string   `yaml:"reason"`
	Fields    []string `yaml:"fields"`
}

type rawPolicies struct {
	Input  []rawPolicy `yaml:"input"`
	Output []rawPolicy `yaml:"output"`
}

type rawTest struct {
	Name   string         `yaml:"name"`
	Args   map[string]any `yaml:"args"`
	Expect map[string]any `yaml:"expect"`
}

type rawToolBody struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tags        []string       `yaml:"tags"`
	Annotations rawAnnotations `yaml:"annotations"`
	Parameters  []rawParameter `yaml:"parameters"`
	Return      *rawType       `yaml:"return"`
	Language    string         `yaml:"language"`
	Source      rawSource      `yaml:"source"`
	Enabled     *bool          `yaml:"enabled"`
	Tests       []rawTest      `yaml:"tests"`
	Policies    rawPolicies    `yaml:"policies"`
}

type rawResourceBody struct {
	URI         string         `yaml:"uri"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tags        []string       `yaml:"tags"`
	MimeType    string         `yaml:"mime_type"`
	Parameters  []rawParameter `yaml:"parameters"`
	Return      *rawType       `yaml:"return"`
	Language    string         `yaml:"language"`
	Source      rawSource      `yaml:"source"`
	Enabled     *bool          `yaml:"enabled"`
	Tests       []rawTest      `yaml:"tests"`
	Policies    rawPolicies    `yaml:"policies"`
}

type rawMessage struct {
	Role   string `yaml:"role"`
	Type   string `yaml:"type"`
	Prompt string `yaml:"prompt"`
}

type rawPromptBody struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tags        []string       `yaml:"tags"`
	Parameters  []rawParameter `yaml:"parameters"`
	Messages    []rawMessage   `yaml:"messages"`
}
