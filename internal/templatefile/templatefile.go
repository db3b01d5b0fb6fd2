// Package templatefile reads template definitions from YAML, TOML or JSON
// files and converts them into template graphs ready for import.
//
// A definition lists steps with local ids. Steps reference each other by id
// in depends_on and parent, or by nesting under children:
//
//	name: onboarding
//	steps:
//	  - id: paperwork
//	    title: Collect paperwork for {{employee}}
//	  - id: laptop
//	    title: Order laptop
//	    depends_on: [paperwork]
//	    assignee: it-desk
package templatefile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/workgraph/internal/graph"
	"github.com/steveyegge/workgraph/internal/types"
)

// Format is a definition file encoding.
type Format string

// Supported formats
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// maxParallel bounds concurrent file reads in LoadAll.
const maxParallel = 8

// Definition is the on-disk shape of a template.
type Definition struct {
	Name        string  `yaml:"name" toml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" toml:"description" json:"description,omitempty"`
	Steps       []*Step `yaml:"steps" toml:"steps" json:"steps"`
}

// Step is one template node.
type Step struct {
	ID          string   `yaml:"id" toml:"id" json:"id"`
	Title       string   `yaml:"title" toml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" toml:"description" json:"description,omitempty"`
	Kind        string   `yaml:"kind,omitempty" toml:"kind" json:"kind,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty" toml:"depends_on" json:"depends_on,omitempty"`
	Parent      string   `yaml:"parent,omitempty" toml:"parent" json:"parent,omitempty"`
	Assignee    string   `yaml:"assignee,omitempty" toml:"assignee" json:"assignee,omitempty"`
	Order       *int     `yaml:"order,omitempty" toml:"order" json:"order,omitempty"`
	Children    []*Step  `yaml:"children,omitempty" toml:"children" json:"children,omitempty"`
}

// FormatFromPath detects the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported template file %s (want .yaml, .yml, .toml or .json)", path)
}

// Parse decodes a definition in the given format.
func Parse(data []byte, format Format) (*Definition, error) {
	var def Definition
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &def)
		if err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("toml: unknown key %s", undecoded[0])
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return &def, nil
}

// ParseFile reads path and converts it into a template graph.
func ParseFile(path string) (*types.TemplateGraph, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is explicit user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	def, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	g, err := def.Graph()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// LoadAll parses every path concurrently. Results are in input order; the
// first failure cancels the rest.
func LoadAll(ctx context.Context, paths []string) ([]*types.TemplateGraph, error) {
	out := make([]*types.TemplateGraph, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tg, err := ParseFile(path)
			if err != nil {
				return err
			}
			out[i] = tg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Graph flattens the step tree into a template graph. Step ids become the
// node keys; the store assigns real ids on import. Duplicate ids, unknown
// references, self dependencies and cycles are rejected.
func (d *Definition) Graph() (*types.TemplateGraph, error) {
	if err := types.ValidateTitle(d.Name); err != nil {
		return nil, fmt.Errorf("template name: %w", err)
	}

	var steps []*Step
	parents := make(map[*Step]string)
	var walk func(list []*Step, parent string)
	walk = func(list []*Step, parent string) {
		for _, s := range list {
			steps = append(steps, s)
			if parent != "" {
				parents[s] = parent
			}
			walk(s.Children, s.ID)
		}
	}
	walk(d.Steps, "")
	if len(steps) == 0 {
		return nil, fmt.Errorf("template %q has no steps", d.Name)
	}

	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("step %q: id is required", s.Title)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}

	g := &types.TemplateGraph{
		Template: &types.Template{Name: d.Name, Description: d.Description},
	}
	for i, s := range steps {
		node := &types.TemplateNode{
			ID:              s.ID,
			Title:           s.Title,
			Description:     s.Description,
			Kind:            types.NodeKind(strings.ToLower(s.Kind)),
			Order:           i,
			DefaultAssignee: s.Assignee,
		}
		if node.Kind == "" {
			node.Kind = types.KindTask
		}
		if !node.Kind.IsValid() {
			return nil, fmt.Errorf("step %s: unknown kind %q", s.ID, s.Kind)
		}
		if err := types.ValidateTitle(node.Title); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.ID, err)
		}
		if s.Order != nil {
			node.Order = *s.Order
		}

		parent := s.Parent
		if nested, ok := parents[s]; ok {
			if parent != "" && parent != nested {
				return nil, fmt.Errorf("step %s: parent %q conflicts with enclosing step %q", s.ID, parent, nested)
			}
			parent = nested
		}
		if parent != "" {
			if !seen[parent] {
				return nil, fmt.Errorf("step %s: unknown parent %q", s.ID, parent)
			}
			node.ParentID = &parent
		}
		g.Nodes = append(g.Nodes, node)

		dupe := make(map[string]bool, len(s.DependsOn))
		for _, pre := range s.DependsOn {
			if dupe[pre] {
				continue
			}
			dupe[pre] = true
			if pre == s.ID {
				return nil, fmt.Errorf("step %s depends on itself", s.ID)
			}
			if !seen[pre] {
				return nil, fmt.Errorf("step %s: depends on unknown step %q", s.ID, pre)
			}
			g.Edges = append(g.Edges, &types.TemplateEdge{DependentID: s.ID, PrerequisiteID: pre})
		}
	}

	if cycle := graph.Build(g.Edges).FindCycle(); cycle != nil {
		return nil, fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	return g, nil
}
