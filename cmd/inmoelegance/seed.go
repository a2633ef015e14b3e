package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"inmoelegance/internal/seed"
)

func (c *cli) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts, listings and leads from a JSONC file",
		Long: `Loads a JSONC seed file (JSON with comments and trailing commas).

Accounts whose e-mail is already registered are skipped together with their
listings, so the command can be run more than once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := seed.ReadFile(file)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			sum, err := seed.Apply(cmd.Context(), a.svc, f, c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "seeded %d admins, %d properties, %d leads (%d admins skipped)\n",
				sum.Admins, sum.Properties, sum.Leads, sum.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "configs/seed.jsonc", "seed file")
	return cmd
}
