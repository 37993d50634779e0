package commands

import (
	"os"

	"fintself/lib/scrapers"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the supported institutions.",
	Run: func(cmd *cobra.Command, args []string) {
		registry := scrapers.NewRegistry(scrapers.Options{})

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"bank id", "name", "country"})
		for _, info := range registry.List() {
			t.AppendRow(table.Row{info.BankID, info.Name, info.Country})
		}
		t.Render()
	},
}
