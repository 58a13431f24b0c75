package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the indexed articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ans, err := a.Engine().Answer(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(ans, "", "  ")
			if err != nil {
				return fmt.Errorf("encode answer: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve (default from rag.default_top_k)")
	return cmd
}
