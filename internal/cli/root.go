// Package cli implements the medhelpctl operator commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

// Deps opens the services a command needs. Each opener returns a release func.
type Deps struct {
	OpenAnswer     func(ctx context.Context) (ports.AnswerService, func(), error)
	OpenUnanswered func(ctx context.Context) (ports.UnansweredReader, func(), error)
	PolicyFile     string
	Version        string
}

func NewRootCommand(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "medhelpctl",
		Short: "Operate the medical answer service",
		Long: `medhelpctl runs the answer pipeline from a terminal and inspects its state.

Example usage:
  medhelpctl ask "What are the symptoms of type 2 diabetes?"
  medhelpctl ask --turn "user:I have diabetes" "what should I eat?"
  medhelpctl unanswered --limit 50
  medhelpctl policy show`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAskCommand(deps),
		newUnansweredCommand(deps),
		newPolicyCommand(deps),
		newVersionCommand(deps),
	)
	return root
}
