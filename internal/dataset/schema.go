package dataset

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var builtinFS embed.FS

// Column types understood by the loader.
const (
	TypeString = "string"
	TypeFloat  = "float"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeDate   = "date"
	TypeDollar = "dollar"
)

// ErrUnknownSchema is returned for a schema name that is neither built in nor a file.
var ErrUnknownSchema = errors.New("unknown schema")

// Column declares the type of one input column.
type Column struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Layout   string `yaml:"layout,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// Schema maps the columns of an input file to typed fields. Columns not
// listed are kept with an inferred type.
type Schema struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Header      *bool    `yaml:"header,omitempty"`
	Names       []string `yaml:"names,omitempty"`
	Delimiter   string   `yaml:"delimiter,omitempty"`
	NA          []string `yaml:"na,omitempty"`
	Columns     []Column `yaml:"columns"`
}

// HasHeader reports whether the first record holds column names.
func (s *Schema) HasHeader() bool { return s.Header == nil || *s.Header }

// Column returns the declaration of name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks types and the header/names combination.
func (s *Schema) Validate() error {
	if !s.HasHeader() && len(s.Names) == 0 {
		return fmt.Errorf("schema %s: header: false requires names", s.Name)
	}
	if len([]rune(s.Delimiter)) > 1 {
		return fmt.Errorf("schema %s: delimiter must be a single character", s.Name)
	}
	seen := map[string]bool{}
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema %s: column without name", s.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("schema %s: duplicate column %q", s.Name, c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case TypeString, TypeFloat, TypeInt, TypeBool, TypeDollar:
		case TypeDate:
			if c.Layout == "" {
				return fmt.Errorf("schema %s: date column %q needs a layout", s.Name, c.Name)
			}
		default:
			return fmt.Errorf("schema %s: column %q: unsupported type %q", s.Name, c.Name, c.Type)
		}
	}
	return nil
}

// ParseSchema decodes and validates a YAML schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Builtin returns the embedded schema called name.
func Builtin(name string) (*Schema, error) {
	data, err := builtinFS.ReadFile(path.Join("schemas", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s (built in: %s)", ErrUnknownSchema, name, strings.Join(BuiltinNames(), ", "))
	}
	return ParseSchema(data)
}

// BuiltinNames lists the embedded schemas.
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("schemas")
	var out []string
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out
}

// ResolveSchema accepts a built-in name or a path to a YAML file. An empty
// ref yields an empty schema that infers every column.
func ResolveSchema(ref string) (*Schema, error) {
	if ref == "" {
		return &Schema{Name: "inferred"}, nil
	}
	if strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		return ParseSchema(data)
	}
	return Builtin(ref)
}
