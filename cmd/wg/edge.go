package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/workgraph/internal/ui"
)

var edgeCmd = &cobra.Command{
	Use:     "edge",
	GroupID: "workflows",
	Short:   "Manage prerequisite edges",
}

var edgeAddCmd = &cobra.Command{
	Use:   "add <dependent-id> <prerequisite-id>",
	Short: "Make a node wait for another node of the same workflow",
	Long: `Add a prerequisite edge. The dependent is locked until the prerequisite is
done, unless either node is already done. Edges that would close a cycle are refused.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := caller()
		if err != nil {
			return err
		}
		res, err := svc.AddEdge(rootCtx, tc, args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		out := cmd.OutOrStdout()
		switch {
		case res.Existing:
			fmt.Fprintf(out, "%s already waits on %s\n", args[0], args[1])
		case res.Locked:
			fmt.Fprintf(out, "%s %s now waits on %s (locked)\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), args[1])
		default:
			fmt.Fprintf(out, "%s %s now waits on %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), args[1])
		}
		return nil
	},
}

func init() {
	edgeCmd.AddCommand(edgeAddCmd)
	rootCmd.AddCommand(edgeCmd)
}
