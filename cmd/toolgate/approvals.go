package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/toolgate/internal/clifmt"
	"github.com/spf13/cobra"
)

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List requests parked for human approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, cleanup, err := gateFromViper(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := g.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No pending approvals.")
				return nil
			}

			fmt.Println(clifmt.Headerf("%-40s %-16s %-8s %s", "ACTION", "TOOL", "RISK", "AGE"))
			now := time.Now().UTC()
			for _, e := range entries {
				age := now.Sub(e.CreatedAt).Round(time.Second)
				fmt.Printf("%-40s %-16s %-8s %s\n", e.ActionID, e.Tool, e.RiskLevel, age)
				if e.ParamSummary != "" {
					fmt.Println(" ", clifmt.Dim(e.ParamSummary))
				}
			}
			return nil
		},
	}
}

func newApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <action-id>",
		Short: "Approve a pending request and sign it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")
			if strings.TrimSpace(by) == "" {
				return fmt.Errorf("--by is required")
			}
			rawConstraints, _ := cmd.Flags().GetStringArray("constraint")
			constraints, err := parseConstraints(rawConstraints)
			if err != nil {
				return err
			}

			g, cleanup, err := gateFromViper(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := g.Approve(cmd.Context(), args[0], strings.TrimSpace(by), constraints)
			if err != nil {
				return err
			}

			printResult(args[0], res)
			if res.Signature != nil {
				return printJSON(res.Signature)
			}
			return nil
		},
	}
	cmd.Flags().String("by", "", "Approver identity")
	cmd.Flags().StringArray("constraint", nil, "Execution constraint as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <action-id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")

			g, cleanup, err := gateFromViper(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := g.Reject(cmd.Context(), args[0], strings.TrimSpace(reason))
			if err != nil {
				return err
			}
			printResult(args[0], res)
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Why the request is rejected")
	return cmd
}

// parseConstraints turns repeated key=value flags into a constraint map,
// keeping numbers and booleans typed so executors can compare them.
func parseConstraints(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, found := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid constraint %q (want key=value)", kv)
		}
		out[key] = parseConstraintValue(strings.TrimSpace(value))
	}
	return out, nil
}

func parseConstraintValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
