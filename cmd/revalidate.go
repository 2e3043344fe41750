package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpuhunt/listing-engine/internal/app"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

func revalidateCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "revalidate",
		Short: "Run one revalidation pass and print the summary",
		Long: `Runs a single time-budgeted revalidation pass over the stalest
models and prints the run summary as JSON. Models that did not fit in
the budget are listed so a follow-up run can pick them up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			run, runErr := a.RunRevalidation(cmd.Context(), timeout)
			if runErr != nil {
				a.Logger().Error("revalidation run failed", logger.Error(runErr))
				return runErr
			}

			out, marshalErr := json.MarshalIndent(run, "", "  ")
			if marshalErr != nil {
				return fmt.Errorf("marshal run summary: %w", marshalErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "run budget (default from config)")
	return cmd
}
