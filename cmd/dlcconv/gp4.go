package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EchoTools/dlcconv/pkg/catalog"
	"github.com/EchoTools/dlcconv/pkg/gp4"
)

func newGP4Cmd(a *app) *cobra.Command {
	var (
		contentID   string
		title       string
		files       []string
		compressed  []string
		catalogPath string
		truncate    bool
	)

	cmd := &cobra.Command{
		Use:   "gp4 <project.gp4>",
		Short: "Write a GP4 project from a file list",
		Long: `Write a GP4 project. Files are given as target=source pairs; files passed
with --compress are marked for compression. The directory tree is inferred
from the targets.

Example:
  dlcconv gp4 --content-id EP0001-CUSA00745_00-RS00ABCDEF123456 \
    --file sce_sys/param.sfo=Sc0/param.sfo \
    --compress DLC/song.psarc=Image0/DLC/song.psarc song.gp4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := a.cfg.TitlePolicy()
			if truncate {
				policy = gp4.TitleTruncate
			}
			opts := []gp4.Option{
				gp4.WithTitlePolicy(policy, a.cfg.Title.MaxBytes),
				gp4.WithPasscode(a.cfg.Passcode),
			}

			if catalogPath == "" {
				catalogPath = a.cfg.Catalog
			}
			if catalogPath != "" {
				cat, err := catalog.Load(catalogPath)
				if err != nil {
					return err
				}
				opts = append(opts, gp4.WithTitleLookup(cat))
			}

			b := gp4.NewBuilder(contentID, title, opts...)
			for _, group := range []struct {
				pairs    []string
				compress bool
			}{{files, false}, {compressed, true}} {
				for _, pair := range group.pairs {
					target, source, ok := strings.Cut(pair, "=")
					if !ok {
						return fmt.Errorf("file %q: want target=source", pair)
					}
					if err := b.Add(source, target, group.compress); err != nil {
						return err
					}
				}
			}

			p, err := b.Build()
			if err != nil {
				return err
			}
			if p.TitleTruncated {
				a.log.Warn("title truncated", "title", p.Title)
			}
			return gp4.WriteFile(args[0], p)
		},
	}

	cmd.Flags().StringVar(&contentID, "content-id", "", "Content identifier")
	cmd.Flags().StringVar(&title, "title", "", "Title (default from catalog)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "target=source file entry")
	cmd.Flags().StringArrayVar(&compressed, "compress", nil, "target=source file entry stored compressed")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "DLC catalog used to resolve the title")
	cmd.Flags().BoolVar(&truncate, "truncate", false, "Truncate over-long titles instead of failing")
	_ = cmd.MarkFlagRequired("content-id")
	return cmd
}
