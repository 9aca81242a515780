package main

import (
	"fmt"

	"github.com/quailyquaily/toolgate/internal/clifmt"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <request.json> <signature.json>",
		Short: "Final go/no-go check before executing a signed request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readActionRequest(args[0])
			if err != nil {
				return err
			}
			sig, err := readActionSignature(args[1])
			if err != nil {
				return err
			}

			g, cleanup, err := gateFromViper(nil)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := g.CanExecute(cmd.Context(), req, sig)
			if err != nil {
				return err
			}

			if res.Allowed {
				fmt.Println(clifmt.Success("can execute"), clifmt.Dim(req.ID))
				if len(res.Constraints) > 0 {
					return printJSON(res.Constraints)
				}
				return nil
			}

			fmt.Println(clifmt.Fail("blocked"), clifmt.Dim(req.ID))
			fmt.Println("  reason:", res.Reason)
			// Exit non-zero so scripts wrapping an executor fail closed.
			return fmt.Errorf("execution blocked: %s", res.Reason)
		},
	}
}
