package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newRegistryCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "Show the flag categories and principles in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			cats := table.NewWriter()
			cats.SetStyle(table.StyleLight)
			cats.SetTitle("Flag categories")
			cats.AppendHeader(table.Row{"ID", "Name", "Description", "Keywords"})
			cats.SetColumnConfigs([]table.ColumnConfig{
				{Number: 3, WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
			})
			for _, c := range a.Registry.Categories.All() {
				cats.AppendRow(table.Row{c.ID, c.Name, c.Description, strings.Join(c.Keywords, ", ")})
			}
			fmt.Fprintln(out, cats.Render())

			ps := table.NewWriter()
			ps.SetStyle(table.StyleLight)
			ps.SetTitle("Principles")
			ps.AppendHeader(table.Row{"ID", "Name", "Description"})
			ps.SetColumnConfigs([]table.ColumnConfig{
				{Number: 3, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
			})
			for _, p := range a.Registry.Principles.All() {
				ps.AppendRow(table.Row{p.ID, p.Name, p.Description})
			}
			fmt.Fprintln(out, ps.Render())
			return nil
		},
	}
}
