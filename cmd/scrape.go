package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	var vectorizeAfter bool

	cmd := &cobra.Command{
		Use:   "scrape <board>",
		Short: "Scrape one board now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report := a.Scraper().ScrapeBoard(cmd.Context(), args[0])
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			if report.IndexFailed {
				return fmt.Errorf("board %s: index page could not be loaded", args[0])
			}
			if !vectorizeAfter {
				return nil
			}

			worker, err := a.Vectorizer()
			if err != nil {
				return err
			}
			summary, err := worker.Vectorize(cmd.Context(), report.CreatedIDs)
			if err != nil {
				return fmt.Errorf("vectorize: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&vectorizeAfter, "vectorize", false, "index the newly created articles afterwards")
	return cmd
}

// errEnqueueNeedsPubSub rejects enqueue on the in-process broker, whose
// queue ends with the command.
var errEnqueueNeedsPubSub = errors.New("enqueue requires pipeline.broker=pubsub")

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <board>...",
		Short: "Publish scrape tasks for the pipeline workers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !a.DurableBroker() {
				return errEnqueueNeedsPubSub
			}
			p, err := a.Pipeline(cmd.Context())
			if err != nil {
				return err
			}
			for _, board := range args {
				id, err := p.EnqueueScrape(cmd.Context(), board)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", board, id)
			}
			return nil
		},
	}
}
