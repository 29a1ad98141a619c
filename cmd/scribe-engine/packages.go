package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/snarg/scribe-engine/internal/billing"
	"github.com/spf13/cobra"
)

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "Validate the package catalog and print it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := billing.LoadCatalog(cfg.PackagesFile, log)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMINUTES\tAMOUNT\tCURRENCY\tTITLE")
		for _, p := range catalog.List() {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", p.ID, p.Minutes, p.AmountInCents, p.Currency, p.Title)
		}
		return tw.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println(version)
	},
}
