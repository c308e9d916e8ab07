package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

func newAskCommand(deps Deps) *cobra.Command {
	var (
		turnFlags  []string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question through the full pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is empty")
			}
			turns, err := parseTurnFlags(turnFlags)
			if err != nil {
				return err
			}

			answers, release, err := deps.OpenAnswer(cmd.Context())
			if err != nil {
				return fmt.Errorf("open answer service: %w", err)
			}
			defer release()

			decision := answers.Answer(cmd.Context(), question, turns)
			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(decision)
			}

			fmt.Fprintln(w, decision.Text)
			fmt.Fprintln(w)
			meta := decision.Metadata
			fmt.Fprintf(w, "in_domain=%t grounded=%t score=%.3f outcome=%s error=%t\n",
				meta.IsInDomain, meta.UsedGroundedContext, meta.BlendedScore, meta.RetrievalOutcome, meta.Error)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&turnFlags, "turn", nil, `prior turn as "role:content", oldest first (repeatable)`)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full decision as JSON")
	return cmd
}

func parseTurnFlags(raw []string) ([]domain.Turn, error) {
	turns := make([]domain.Turn, 0, len(raw))
	for _, item := range raw {
		roleRaw, content, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("turn %q must look like role:content", item)
		}
		role, ok := domain.ParseRole(roleRaw)
		if !ok {
			return nil, fmt.Errorf("turn %q: role must be user or assistant", item)
		}
		turns = append(turns, domain.Turn{Role: role, Content: strings.TrimSpace(content)})
	}
	return turns, nil
}
