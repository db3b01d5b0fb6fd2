package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/workgraph/internal/clone"
	"github.com/steveyegge/workgraph/internal/graph"
	"github.com/steveyegge/workgraph/internal/templatefile"
	"github.com/steveyegge/workgraph/internal/types"
	"github.com/steveyegge/workgraph/internal/ui"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	GroupID: "templates",
	Short:   "Manage workflow templates",
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import template definitions from YAML, TOML or JSON files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		graphs, err := templatefile.LoadAll(rootCtx, args)
		if err != nil {
			return err
		}

		imported := make([]*types.Template, 0, len(graphs))
		for _, g := range graphs {
			tpl, err := svc.ImportTemplate(rootCtx, tc, g)
			if err != nil {
				return fmt.Errorf("import %q: %w", g.Template.Name, err)
			}
			imported = append(imported, tpl)
		}

		if jsonOutput {
			return outputJSON(cmd, imported)
		}
		for i, tpl := range imported {
			fmt.Fprintf(cmd.OutOrStdout(), "%s Imported template %s (%s): %d nodes, %d edges\n",
				ui.RenderPass("✓"), ui.RenderAccent(tpl.ID), tpl.Name, len(graphs[i].Nodes), len(graphs[i].Edges))
		}
		return nil
	},
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates of the current tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		list, err := svc.ListTemplates(rootCtx, tc)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No templates found.")
			return nil
		}
		for _, tpl := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
				ui.RenderAccent(tpl.ID), tpl.Name, ui.RenderMuted(ui.Truncate(tpl.Description, 60)))
		}
		return nil
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template's nodes, edges and variables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		g, err := svc.GetTemplateGraph(rootCtx, tc, args[0])
		if err != nil {
			return err
		}
		vars := templateVariables(g)
		ordered, err := topoNodes(g)
		if err != nil {
			return err
		}
		if jsonOutput {
			order := make([]string, len(ordered))
			for i, n := range ordered {
				order[i] = n.ID
			}
			return outputJSON(cmd, struct {
				*types.TemplateGraph
				Variables []string `json:"variables,omitempty"`
				RunOrder  []string `json:"run_order"`
			}{g, vars, order})
		}
		nodes := g.Nodes
		if topo, _ := cmd.Flags().GetBool("topo"); topo {
			nodes = ordered
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", ui.RenderAccent(g.Template.ID), g.Template.Name)
		if g.Template.Description != "" {
			fmt.Fprintln(out, g.Template.Description)
		}
		if len(vars) > 0 {
			fmt.Fprintf(out, "Variables: %s\n", strings.Join(vars, ", "))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.RenderCategory("nodes"))

		prereqs := make(map[string][]string)
		for _, e := range g.Edges {
			prereqs[e.DependentID] = append(prereqs[e.DependentID], e.PrerequisiteID)
		}
		titles := make(map[string]string, len(g.Nodes))
		for _, n := range g.Nodes {
			titles[n.ID] = n.Title
		}
		for _, n := range nodes {
			line := fmt.Sprintf("  %s [%s] %s", ui.RenderMuted(n.ID), n.Kind, n.Title)
			if n.DefaultAssignee != "" {
				line += " @" + n.DefaultAssignee
			}
			if pre := prereqs[n.ID]; len(pre) > 0 {
				names := make([]string, len(pre))
				for i, id := range pre {
					names[i] = titles[id]
				}
				line += ui.RenderMuted(" after: " + strings.Join(names, ", "))
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

// topoNodes returns the template's nodes with every prerequisite ahead of its
// dependents.
func topoNodes(g *types.TemplateGraph) ([]*types.TemplateNode, error) {
	byID := make(map[string]*types.TemplateNode, len(g.Nodes))
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		byID[n.ID] = n
		ids[i] = n.ID
	}
	order, err := graph.Build(g.Edges).TopoSort(ids...)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", g.Template.ID, err)
	}
	nodes := make([]*types.TemplateNode, 0, len(order))
	for _, id := range order {
		if n, ok := byID[id]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func templateVariables(g *types.TemplateGraph) []string {
	texts := make([]string, 0, 2*len(g.Nodes))
	for _, n := range g.Nodes {
		texts = append(texts, n.Title, n.Description)
	}
	vars := clone.ExtractVariables(texts...)
	sort.Strings(vars)
	return vars
}

func init() {
	templateShowCmd.Flags().Bool("topo", false, "List nodes with prerequisites before their dependents")
	templateCmd.AddCommand(templateImportCmd, templateListCmd, templateShowCmd)
	rootCmd.AddCommand(templateCmd)
}
