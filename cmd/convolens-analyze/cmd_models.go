package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newModelsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the provider offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, opts, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			models, err := a.Gateway.ListModels(cmd.Context(), opts.Credentials)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Model", "Owned by"})
			for _, m := range models {
				t.AppendRow(table.Row{m.ID, m.OwnedBy})
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}
