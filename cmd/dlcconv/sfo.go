package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/EchoTools/dlcconv/pkg/contentid"
	"github.com/EchoTools/dlcconv/pkg/sfo"
)

func newSFOCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sfo",
		Short: "Inspect and write param.sfo files",
	}
	cmd.AddCommand(newSFODumpCmd(), newSFOPackCmd(a))
	return cmd
}

func newSFODumpCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dump <param.sfo>",
		Short: "Print the parameters of a param.sfo file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sfo.ReadFile(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return dumpJSON(cmd.OutOrStdout(), s)
			}
			return dumpTable(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

type sfoParam struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     any    `json:"value"`
	Length    int    `json:"length"`
	MaxLength uint32 `json:"max_length"`
}

func dumpJSON(w io.Writer, s *sfo.Schema) error {
	params := make([]sfoParam, 0, s.Len())
	for _, e := range s.Entries() {
		p := sfoParam{Key: e.Key, Type: e.Type.String(), Length: e.Length(), MaxLength: e.MaxLength}
		if e.Type == sfo.Integer {
			p.Value = e.Int
		} else {
			p.Value = e.Text
		}
		params = append(params, p)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(params)
}

func dumpTable(w io.Writer, s *sfo.Schema) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tLEN\tMAX\tVALUE")
	for _, e := range s.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", e.Key, e.Type, e.Length(), e.MaxLength, e.Value())
	}
	return tw.Flush()
}

func newSFOPackCmd(a *app) *cobra.Command {
	var (
		p    sfo.DLCParams
		name string
	)

	cmd := &cobra.Command{
		Use:   "pack <param.sfo>",
		Short: "Write the param.sfo of an additional-content package",
		Long: `Write the param.sfo of an additional-content package. The content identifier
is derived from --name when --content-id is not given.

Example:
  dlcconv sfo pack --name poison_p --title "Poison" param.sfo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.TitleID == "" {
				p.TitleID = a.cfg.TitleID
			}
			if p.Version == "" {
				p.Version = a.cfg.Version
			}
			if p.ContentID == "" {
				if name == "" {
					return fmt.Errorf("--content-id or --name is required")
				}
				id, err := contentid.FromName(a.cfg.Region, p.TitleID, name)
				if err != nil {
					return err
				}
				p.ContentID = id
			} else if err := contentid.Validate(p.ContentID); err != nil {
				return err
			}

			s, err := sfo.NewDLCSchema(p)
			if err != nil {
				return err
			}
			if err := sfo.WriteFile(args[0], s); err != nil {
				return err
			}
			a.log.Info("param.sfo written", "path", args[0], "content_id", p.ContentID)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.ContentID, "content-id", "", "Content identifier")
	cmd.Flags().StringVar(&name, "name", "", "Archive name to derive the content identifier from")
	cmd.Flags().StringVar(&p.Title, "title", "", "Title")
	cmd.Flags().StringVar(&p.TitleID, "title-id", "", "Title id (default from config)")
	cmd.Flags().StringVar(&p.Version, "version", "", "Version (default from config)")
	cmd.Flags().Uint32Var(&p.Attribute, "attribute", 0, "ATTRIBUTE value")
	return cmd
}
