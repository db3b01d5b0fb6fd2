package templatefile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/workgraph/internal/types"
)

const yamlDef = `
name: onboarding
description: New hire checklist
steps:
  - id: paperwork
    title: Collect paperwork for {{employee}}
  - id: setup
    title: Workstation
    kind: group
    children:
      - id: laptop
        title: Order laptop
        depends_on: [paperwork]
        assignee: it-desk
      - id: accounts
        title: Create accounts
        depends_on: [laptop, paperwork, paperwork]
  - id: notes
    title: Remember the welcome lunch
    kind: note
    order: 99
`

const tomlDef = `
name = "onboarding"

[[steps]]
id = "paperwork"
title = "Collect paperwork"

[[steps]]
id = "laptop"
title = "Order laptop"
depends_on = ["paperwork"]
parent = "paperwork"
`

const jsonDef = `{
  "name": "onboarding",
  "steps": [
    {"id": "a", "title": "A"},
    {"id": "b", "title": "B", "depends_on": ["a"]}
  ]
}`

func nodeByKey(g *types.TemplateGraph, key string) *types.TemplateNode {
	for _, n := range g.Nodes {
		if n.ID == key {
			return n
		}
	}
	return nil
}

func TestParseYAML(t *testing.T) {
	def, err := Parse([]byte(yamlDef), FormatYAML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g, err := def.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}

	if g.Template.Name != "onboarding" || g.Template.Description != "New hire checklist" {
		t.Errorf("template = %+v", g.Template)
	}
	if len(g.Nodes) != 5 {
		t.Fatalf("nodes = %d, want 5", len(g.Nodes))
	}
	if len(g.Edges) != 3 {
		t.Errorf("edges = %d, want 3 (duplicate depends_on collapsed)", len(g.Edges))
	}

	laptop := nodeByKey(g, "laptop")
	if laptop.ParentID == nil || *laptop.ParentID != "setup" {
		t.Errorf("laptop parent = %v, want setup", laptop.ParentID)
	}
	if laptop.DefaultAssignee != "it-desk" || laptop.Kind != types.KindTask {
		t.Errorf("laptop = %+v", laptop)
	}
	if n := nodeByKey(g, "setup"); n.Kind != types.KindGroup || n.ParentID != nil {
		t.Errorf("setup = %+v", n)
	}
	if n := nodeByKey(g, "notes"); n.Order != 99 || n.Kind != types.KindNote {
		t.Errorf("notes = %+v", n)
	}
	if n := nodeByKey(g, "accounts"); n.Order != 3 {
		t.Errorf("accounts order = %d, want its position 3", n.Order)
	}
}

func TestParseTOMLAndJSON(t *testing.T) {
	for _, tt := range []struct {
		format Format
		data   string
	}{
		{FormatTOML, tomlDef},
		{FormatJSON, jsonDef},
	} {
		t.Run(string(tt.format), func(t *testing.T) {
			def, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			g, err := def.Graph()
			if err != nil {
				t.Fatalf("Graph: %v", err)
			}
			if len(g.Nodes) != 2 || len(g.Edges) != 1 {
				t.Errorf("got %d nodes, %d edges", len(g.Nodes), len(g.Edges))
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	tests := []struct {
		format Format
		data   string
	}{
		{FormatYAML, "name: x\nsteps:\n  - id: a\n    title: A\n    priority: 1\n"},
		{FormatTOML, "name = \"x\"\n[[steps]]\nid = \"a\"\ntitle = \"A\"\nlabels = [\"l\"]\n"},
		{FormatJSON, `{"name":"x","steps":[{"id":"a","title":"A","blocks":["b"]}]}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); err == nil {
				t.Error("expected error for unknown field")
			}
		})
	}
}

func TestGraphValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"no name", `{"steps":[{"id":"a","title":"A"}]}`, "template name"},
		{"no steps", `{"name":"x"}`, "no steps"},
		{"missing id", `{"name":"x","steps":[{"title":"A"}]}`, "id is required"},
		{"duplicate id", `{"name":"x","steps":[{"id":"a","title":"A"},{"id":"a","title":"B"}]}`, "duplicate step id"},
		{"unknown dependency", `{"name":"x","steps":[{"id":"a","title":"A","depends_on":["zz"]}]}`, "unknown step"},
		{"self dependency", `{"name":"x","steps":[{"id":"a","title":"A","depends_on":["a"]}]}`, "depends on itself"},
		{"unknown parent", `{"name":"x","steps":[{"id":"a","title":"A","parent":"zz"}]}`, "unknown parent"},
		{"bad kind", `{"name":"x","steps":[{"id":"a","title":"A","kind":"epic"}]}`, "unknown kind"},
		{"blank title", `{"name":"x","steps":[{"id":"a","title":" "}]}`, "title is required"},
		{
			"conflicting parent",
			`{"name":"x","steps":[{"id":"a","title":"A"},{"id":"b","title":"B","children":[{"id":"c","title":"C","parent":"a"}]}]}`,
			"conflicts",
		},
		{
			"cycle",
			`{"name":"x","steps":[{"id":"a","title":"A","depends_on":["c"]},{"id":"b","title":"B","depends_on":["a"]},{"id":"c","title":"C","depends_on":["b"]}]}`,
			"dependency cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Parse([]byte(tt.data), FormatJSON)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = def.Graph()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Graph() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.yaml":       FormatYAML,
		"b.YML":        FormatYAML,
		"dir/c.toml":   FormatTOML,
		"/abs/d.json":  FormatJSON,
		"e.formula.md": "",
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		if want == "" {
			if err == nil {
				t.Errorf("FormatFromPath(%q) expected error", path)
			}
			continue
		}
		if err != nil || got != want {
			t.Errorf("FormatFromPath(%q) = %q, %v; want %q", path, got, err, want)
		}
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"one.yaml":   yamlDef,
		"two.toml":   tomlDef,
		"three.json": jsonDef,
	}
	var paths []string
	for _, name := range []string{"one.yaml", "two.toml", "three.json"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(files[name]), 0o600); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	graphs, err := LoadAll(context.Background(), paths)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(graphs) != 3 {
		t.Fatalf("got %d graphs", len(graphs))
	}
	if len(graphs[0].Nodes) != 5 || len(graphs[1].Nodes) != 2 || len(graphs[2].Nodes) != 2 {
		t.Error("results are not in input order")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"name":"x","steps":[{"id":"a","title":"A","depends_on":["a"]}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = LoadAll(context.Background(), append(paths, bad))
	if err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Errorf("LoadAll error = %v, want one naming bad.json", err)
	}

	if _, err := LoadAll(context.Background(), []string{filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("expected error for missing file")
	}
}
