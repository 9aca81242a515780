package main

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/toolgate/gate"
	"github.com/quailyquaily/toolgate/internal/clifmt"
	"github.com/spf13/cobra"
)

func newEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <request.json>",
		Short: "Run the policy decision for a proposed tool call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readActionRequest(args[0])
			if err != nil {
				return err
			}

			g, cleanup, err := gateFromViper(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := g.Evaluate(cmd.Context(), req)
			if err != nil {
				return err
			}

			printResult(req.ID, res)
			if res.Signature != nil {
				return printJSON(res.Signature)
			}
			return nil
		},
	}
}

func printResult(actionID string, res gate.Result) {
	switch {
	case res.Allowed:
		fmt.Println(clifmt.Success("allowed"), clifmt.Dim(actionID))
	case res.RequiresApproval:
		fmt.Println(clifmt.Warn("pending approval"), clifmt.Dim(actionID))
	default:
		fmt.Println(clifmt.Fail("denied"), clifmt.Dim(actionID))
	}
	if res.Reason != "" {
		fmt.Println("  reason:", res.Reason)
	}
	if res.MatchedRuleID != "" {
		fmt.Println("  rule:  ", res.MatchedRuleID)
	}
	if len(res.Violations) > 0 {
		fmt.Println("  violations:", strings.Join(res.Violations, "; "))
	}
}
