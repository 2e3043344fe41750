package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gpuhunt/listing-engine/internal/app"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the operator API and scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Serve(cmd.Context())
		},
	}
}
