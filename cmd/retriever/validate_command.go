package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"retriever/internal/api"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var (
		backendName string
		passcode    string
		token       string
	)
	cmd := &cobra.Command{
		Use:   "validate <candidate...>",
		Short: "Check candidates synchronously and report which are usable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Validate(cmd.Context(), api.ValidateRequest{
				Backend:    backendName,
				Candidates: args,
				Passcode:   passcode,
				Token:      token,
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderValidations(resp.Results))
			fmt.Fprintf(out, "%s: %s\n", resp.Backend, validationSummaryLine(resp.Summary))
			return nil
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "", "Validator backend (defaults to the policy order)")
	cmd.Flags().StringVar(&passcode, "passcode", "", "Share passcode applied to every candidate")
	cmd.Flags().StringVar(&token, "token", "", "Share token applied to every candidate")
	return cmd
}
