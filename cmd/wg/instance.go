package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/workgraph/internal/clone"
	"github.com/steveyegge/workgraph/internal/types"
	"github.com/steveyegge/workgraph/internal/ui"
)

var (
	instantiateTitle string
	instantiateMeta  string
	instantiateVars  []string

	listStatus string
	listLimit  int
	listOffset int

	historyLimit int
)

var instantiateCmd = &cobra.Command{
	Use:     "instantiate <template-id>",
	GroupID: "workflows",
	Short:   "Create a live workflow from a template",
	Long: `Clone a template into a new workflow instance. Nodes without prerequisites
start open; every other node starts locked until its prerequisites are done.

Placeholders like {{customer}} in node titles and descriptions are filled from --var.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		vars, err := parseVars(instantiateVars)
		if err != nil {
			return err
		}
		req := clone.Request{TemplateID: args[0], Title: instantiateTitle, Vars: vars}
		if instantiateMeta != "" {
			req.Metadata = json.RawMessage(instantiateMeta)
		}
		res, err := svc.Instantiate(rootCtx, tc, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		open := 0
		for _, n := range res.Nodes {
			if n.Status == types.StatusOpen {
				open++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Created workflow %s: %d nodes (%d open), %d edges\n",
			ui.RenderPass("✓"), ui.RenderAccent(res.Instance.ID), len(res.Nodes), open, len(res.Edges))
		return nil
	},
}

// parseVars turns key=value pairs into a map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --var %q (want key=value)", p)
		}
		vars[strings.TrimSpace(k)] = v
	}
	return vars, nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "workflows",
	Short:   "List workflows of the current tenant",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		filter := types.InstanceFilter{Limit: listLimit, Offset: listOffset}
		if listStatus != "" {
			status := types.InstanceStatus(strings.ToLower(listStatus))
			filter.Status = &status
		}
		page, err := svc.ListInstances(rootCtx, tc, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, page)
		}

		out := cmd.OutOrStdout()
		if len(page.Items) == 0 {
			fmt.Fprintln(out, "No workflows found.")
			return nil
		}
		for _, it := range page.Items {
			fmt.Fprintf(out, "%s  %-9s %s  %s",
				ui.RenderAccent(it.ID), ui.RenderInstanceStatus(it.Status),
				ui.RenderProgress(it.DoneCount, it.NodeCount), ui.Truncate(it.Title, 50))
			if it.LockedCount > 0 {
				fmt.Fprint(out, ui.RenderMuted(fmt.Sprintf("  (%d locked)", it.LockedCount)))
			}
			fmt.Fprintln(out)
		}
		if page.NextOffset > 0 {
			fmt.Fprintln(out, ui.RenderMuted(fmt.Sprintf("Showing %d of %d. Next page: --offset %d", len(page.Items), page.Total, page.NextOffset)))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <workflow-id>",
	GroupID: "workflows",
	Short:   "Show a workflow's node tree and prerequisites",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		g, err := svc.GetInstanceGraph(rootCtx, tc, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, g)
		}
		renderInstanceGraph(cmd.OutOrStdout(), g)
		return nil
	},
}

// renderInstanceGraph prints the parent/child tree; prerequisites are listed per node.
func renderInstanceGraph(out io.Writer, g *types.InstanceGraph) {
	inst := g.Instance
	done := 0
	for _, n := range g.Nodes {
		if n.Status == types.StatusDone {
			done++
		}
	}
	fmt.Fprintf(out, "%s %s  %s  %s\n", ui.RenderAccent(inst.ID), inst.Title,
		ui.RenderInstanceStatus(inst.Status), ui.RenderProgress(done, len(g.Nodes)))
	fmt.Fprintln(out, ui.RenderSeparator())

	byID := make(map[string]*types.InstanceNode, len(g.Nodes))
	children := make(map[string][]*types.InstanceNode)
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	var roots []*types.InstanceNode
	for _, n := range g.Nodes {
		if n.ParentID != nil && byID[*n.ParentID] != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n)
			continue
		}
		roots = append(roots, n)
	}
	prereqs := make(map[string][]string)
	for _, e := range g.Edges {
		prereqs[e.DependentID] = append(prereqs[e.DependentID], e.PrerequisiteID)
	}

	width := ui.Width(100)
	var walk func(nodes []*types.InstanceNode, prefix string)
	walk = func(nodes []*types.InstanceNode, prefix string) {
		for i, n := range nodes {
			branch, next := ui.TreeChild, ui.TreePipe
			if i == len(nodes)-1 {
				branch, next = ui.TreeLast, ui.TreeIndent
			}
			line := fmt.Sprintf("%s%s%s %s %s", prefix, branch, ui.RenderStatusIcon(n.Status),
				ui.RenderMuted(n.ID), ui.Truncate(n.Title, max(20, width-40)))
			if n.Kind != types.KindTask {
				line += ui.RenderMuted(" [" + string(n.Kind) + "]")
			}
			if n.Assignee != "" {
				line += " @" + n.Assignee
			}
			if pre := prereqs[n.ID]; len(pre) > 0 {
				names := make([]string, 0, len(pre))
				for _, id := range pre {
					if p := byID[id]; p != nil && p.Status != types.StatusDone {
						names = append(names, p.Title)
					}
				}
				if len(names) > 0 {
					line += ui.RenderMuted(" waits on: " + strings.Join(names, ", "))
				}
			}
			fmt.Fprintln(out, line)
			walk(children[n.ID], prefix+next)
		}
	}
	walk(roots, "")
}

var historyCmd = &cobra.Command{
	Use:     "history <workflow-id>",
	GroupID: "workflows",
	Short:   "Show the audit trail of a workflow",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		entries, err := svc.History(rootCtx, tc, args[0], historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, entries)
		}
		for _, e := range entries {
			details := ""
			if len(e.Details) > 0 {
				b, _ := json.Marshal(e.Details)
				details = string(b)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %-10s %s\n",
				ui.RenderMuted(e.CreatedAt.Local().Format("2006-01-02 15:04:05")), e.Action, e.Actor, ui.RenderMuted(details))
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <workflow-id>",
	GroupID: "workflows",
	Short:   "Delete a workflow with all of its nodes and edges",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		if err := svc.DeleteInstance(rootCtx, tc, args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"deleted": args[0]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted workflow %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	instantiateCmd.Flags().StringVarP(&instantiateTitle, "title", "t", "", "Workflow title (required)")
	instantiateCmd.Flags().StringVar(&instantiateMeta, "meta", "", "Metadata as a JSON document")
	instantiateCmd.Flags().StringArrayVar(&instantiateVars, "var", nil, "Template variable as key=value (repeatable)")
	_ = instantiateCmd.MarkFlagRequired("title")

	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by aggregate status (active, completed)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Page size (default 50)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip this many workflows")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show only the first N entries (0 = all)")

	rootCmd.AddCommand(instantiateCmd, listCmd, showCmd, historyCmd, deleteCmd)
}
