package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gpuhunt/listing-engine/internal/app"
	"github.com/gpuhunt/listing-engine/internal/logger"
)

func cleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Re-filter all active listings and archive mismatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			run, runErr := a.RunCleanup(cmd.Context())
			if runErr != nil {
				a.Logger().Error("cleanup sweep failed", logger.Error(runErr))
				return runErr
			}

			out, marshalErr := json.MarshalIndent(run, "", "  ")
			if marshalErr != nil {
				return fmt.Errorf("marshal sweep summary: %w", marshalErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
