// Package rules reads mapping-rule declaration files and compiles them into
// feed rules.
//
// A declaration file is JSON or YAML:
//
//	rules:
//	  - {target: name, type: rename, source: title}
//	  - {target: brand, type: static, value: Acme}
//	  - target: full
//	    type: combine
//	    separator: "-"
//	    fields: [{field: brand}, {custom: " / "}, {field: model}]
//	  - {target: desc, type: empty}
//
// Combine parts reference an original field with `field:` or carry literal
// text with `custom:`. A field reference spelled `custom_<text>` is also read
// as the literal <text>. A separator that is absent, empty or "none" joins
// with the empty string.
package rules

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"feedmap/internal/feed"
)

// Format is the encoding of a declaration document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// legacyLiteralPrefix marks a combine field reference that is really literal
// text.
const legacyLiteralPrefix = "custom_"

// noSeparator is the sentinel the mapping form stores for "no separator".
const noSeparator = "none"

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", errors.Errorf("unsupported rules file extension %q", filepath.Ext(path))
	}
}

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.Errorf("unknown rules format %q", s)
	}
}

// Part is one piece of a combine declaration.
type Part struct {
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
	Custom string `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Declaration is one rule as written in a file.
type Declaration struct {
	Target    string `json:"target" yaml:"target"`
	Type      string `json:"type" yaml:"type"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`
	Fields    []Part `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Declarations is the top-level document.
type Declarations struct {
	Rules []Declaration `json:"rules" yaml:"rules"`
}

// ValidationError lists every problem found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid rules: " + strings.Join(e.Problems, "; ")
}

// Load reads and compiles the declaration file at path.
func Load(path string) (*Declarations, []feed.Rule, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Errorf("read rules file: %w", err)
	}
	decls, err := Parse(data, format)
	if err != nil {
		return nil, nil, errors.Errorf("%s: %w", path, err)
	}
	compiled, err := decls.Compile()
	if err != nil {
		return nil, nil, errors.Errorf("%s: %w", path, err)
	}
	return decls, compiled, nil
}

// Parse decodes a document. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Declarations, error) {
	var d Declarations
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, errors.Errorf("parsing JSON: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	default:
		return nil, errors.Errorf("unknown rules format %q", format)
	}
	return &d, nil
}

// Encode writes decls in format. JSON output is indented.
func Encode(decls *Declarations, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(decls, "", "  ")
		if err != nil {
			return nil, errors.Errorf("encoding JSON: %w", err)
		}
		return append(b, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(decls); err != nil {
			return nil, errors.Errorf("encoding YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Errorf("encoding YAML: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.Errorf("unknown rules format %q", format)
	}
}

// Compile validates every declaration and returns one rule per target, a
// later declaration replacing an earlier one with the same target. All
// problems are reported together as *ValidationError.
func (d *Declarations) Compile() ([]feed.Rule, error) {
	var problems []string
	set := feed.NewRuleSet()

	for i, decl := range d.Rules {
		rule, err := decl.compile()
		if err == nil {
			err = feed.ValidateRule(rule)
		}
		if err != nil {
			problems = append(problems, errors.Errorf("rule %d: %w", i+1, err).Error())
			continue
		}
		set.Put(rule)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return set.Rules(), nil
}

func (decl Declaration) compile() (feed.Rule, error) {
	target := strings.TrimSpace(decl.Target)

	switch feed.Kind(strings.ToLower(strings.TrimSpace(decl.Type))) {
	case feed.KindRename:
		return feed.Rename{TargetField: target, SourceField: strings.TrimSpace(decl.Source)}, nil
	case feed.KindStatic:
		return feed.Static{TargetField: target, Value: decl.Value}, nil
	case feed.KindEmpty:
		return feed.Empty{TargetField: target}, nil
	case feed.KindCombine:
		if len(decl.Fields) == 0 {
			return nil, errors.Errorf("combine for %q has no fields", target)
		}
		parts := make([]feed.Part, 0, len(decl.Fields))
		for j, p := range decl.Fields {
			switch {
			case p.Field != "" && p.Custom != "":
				return nil, errors.Errorf("combine part %d sets both field and custom", j+1)
			case p.Custom != "":
				parts = append(parts, feed.LiteralPart(p.Custom))
			case strings.HasPrefix(p.Field, legacyLiteralPrefix):
				parts = append(parts, feed.LiteralPart(strings.TrimPrefix(p.Field, legacyLiteralPrefix)))
			case p.Field != "":
				parts = append(parts, feed.FieldPart(p.Field))
			default:
				return nil, errors.Errorf("combine part %d needs field or custom", j+1)
			}
		}
		return feed.Combine{TargetField: target, Parts: parts, Separator: separator(decl.Separator)}, nil
	case "":
		return nil, errors.Errorf("rule for %q has no type", target)
	default:
		return nil, errors.Errorf("unknown rule type %q", decl.Type)
	}
}

func separator(s string) string {
	if s == noSeparator {
		return ""
	}
	return s
}

// FromRules turns compiled rules back into declarations, for storing a rule
// set as a document.
func FromRules(rules []feed.Rule) *Declarations {
	d := &Declarations{Rules: make([]Declaration, 0, len(rules))}
	for _, r := range rules {
		switch x := r.(type) {
		case feed.Rename:
			d.Rules = append(d.Rules, Declaration{Target: x.TargetField, Type: string(feed.KindRename), Source: x.SourceField})
		case feed.Static:
			d.Rules = append(d.Rules, Declaration{Target: x.TargetField, Type: string(feed.KindStatic), Value: x.Value})
		case feed.Empty:
			d.Rules = append(d.Rules, Declaration{Target: x.TargetField, Type: string(feed.KindEmpty)})
		case feed.Combine:
			decl := Declaration{Target: x.TargetField, Type: string(feed.KindCombine), Separator: x.Separator}
			for _, p := range x.Parts {
				if p.Value == "" {
					continue
				}
				if p.Literal {
					decl.Fields = append(decl.Fields, Part{Custom: p.Value})
				} else {
					decl.Fields = append(decl.Fields, Part{Field: p.Value})
				}
			}
			d.Rules = append(d.Rules, decl)
		}
	}
	return d
}
