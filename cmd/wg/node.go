package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/workgraph/internal/types"
	"github.com/steveyegge/workgraph/internal/ui"
	"github.com/steveyegge/workgraph/internal/workflow"
)

var nodeCmd = &cobra.Command{
	Use:     "node",
	GroupID: "workflows",
	Short:   "Add, edit and progress workflow nodes",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add <workflow-id> <title>",
	Short: "Add an ad-hoc node to a workflow (manager or above)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		req := workflow.NewNode{InstanceID: args[0], Title: args[1]}
		req.Description, _ = cmd.Flags().GetString("description")
		req.Assignee, _ = cmd.Flags().GetString("assignee")
		req.BlockingOf, _ = cmd.Flags().GetString("blocks")
		kind, _ := cmd.Flags().GetString("kind")
		req.Kind = types.NodeKind(kind)
		if parent, _ := cmd.Flags().GetString("parent"); parent != "" {
			req.ParentID = &parent
		}

		node, err := svc.AddNode(rootCtx, tc, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, node)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Added node %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(node.ID), node.Title)
		if req.BlockingOf != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s now waits on it\n", req.BlockingOf)
		}
		return nil
	},
}

var nodeStatusCmd = &cobra.Command{
	Use:   "status <node-id> <open|in_progress|done>",
	Short: "Move a node to a new status and cascade to its dependents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		status, err := types.ParseStatus(args[1])
		if err != nil {
			return fmt.Errorf("%w: %w", workflow.ErrInvalidStatus, err)
		}
		res, err := svc.UpdateNodeStatus(rootCtx, tc, args[0], status)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}

		out := cmd.OutOrStdout()
		if res.Unchanged {
			fmt.Fprintf(out, "%s is already %s\n", res.Node.ID, ui.RenderStatus(res.Node.Status))
			return nil
		}
		fmt.Fprintf(out, "%s %s: %s -> %s\n", ui.RenderStatusIcon(res.Node.Status), ui.RenderAccent(res.Node.ID),
			ui.RenderStatus(res.Previous), ui.RenderStatus(res.Node.Status))
		for _, c := range res.Cascaded {
			fmt.Fprintf(out, "  %s%s %s\n", ui.TreeLast, c.ID, ui.RenderStatus(c.NewStatus))
		}
		if res.InstanceStatus == types.InstanceCompleted {
			fmt.Fprintf(out, "%s Workflow %s\n", ui.RenderPass("✓"), ui.RenderInstanceStatus(res.InstanceStatus))
		}
		return nil
	},
}

var nodeEditCmd = &cobra.Command{
	Use:   "edit <node-id>",
	Short: "Change a node's title or description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		var update types.NodeDetailsUpdate
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			update.Title = &title
		}
		if cmd.Flags().Changed("description") {
			desc, _ := cmd.Flags().GetString("description")
			update.Description = &desc
		}
		node, err := svc.UpdateNodeDetails(rootCtx, tc, args[0], update)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, node)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Updated node %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(node.ID), node.Title)
		return nil
	},
}

func init() {
	nodeAddCmd.Flags().StringP("description", "d", "", "Node description")
	nodeAddCmd.Flags().String("kind", "task", "Node kind: task, note, group")
	nodeAddCmd.Flags().String("assignee", "", "Assignee user id")
	nodeAddCmd.Flags().String("parent", "", "Parent node id (tree grouping only)")
	nodeAddCmd.Flags().String("blocks", "", "Existing node that must wait for the new one")

	nodeEditCmd.Flags().String("title", "", "New title")
	nodeEditCmd.Flags().StringP("description", "d", "", "New description")

	nodeCmd.AddCommand(nodeAddCmd, nodeStatusCmd, nodeEditCmd)
	rootCmd.AddCommand(nodeCmd)
}
