package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medhelp-assistant/internal/config"
)

func newPolicyCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the retrieval policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective policy as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := config.LoadPolicy(deps.PolicyFile)
			if err != nil {
				return err
			}
			out, err := config.MarshalPolicy(policy)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a policy file without starting the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := config.LoadPolicy(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: threshold=%.2f passage_bar=%.3f weights=%.2f/%.2f domains=%d\n",
				policy.AcceptanceThreshold, policy.PassageBar(), policy.PrimaryWeight, policy.ContextWeight, len(policy.ApprovedDomains))
			return nil
		},
	})
	return cmd
}
