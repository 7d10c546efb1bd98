package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/EchoTools/dlcconv/pkg/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and convert DLC catalogs",
	}

	show := &cobra.Command{
		Use:   "show <catalog>",
		Short: "List catalog entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.Load(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "KEY\tAPP ID\tCONTENT ID\tARTIST\tTITLE\n")
			for _, e := range c.Entries() {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", e.Key, e.AppID, e.ContentID, e.Artist, e.Title)
			}
			return tw.Flush()
		},
	}

	var raw bool
	pack := &cobra.Command{
		Use:   "pack <in> <out>",
		Short: "Rewrite a catalog, compressed unless --raw is given",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			if err := catalog.Save(args[1], c, !raw); err != nil {
				return err
			}
			a.log.Info("catalog written", "path", args[1], "entries", c.Len(), "compressed", !raw)
			return nil
		},
	}
	pack.Flags().BoolVar(&raw, "raw", false, "Write plain JSON")

	cmd.AddCommand(show, pack)
	return cmd
}
