package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EchoTools/dlcconv/pkg/catalog"
	"github.com/EchoTools/dlcconv/pkg/config"
	"github.com/EchoTools/dlcconv/pkg/convert"
	"github.com/EchoTools/dlcconv/pkg/gp4"
	"github.com/EchoTools/dlcconv/pkg/pubtool"
)

type convertFlags struct {
	outputDir   string
	title       string
	contentID   string
	catalogPath string
	toolPath    string
	iconPath    string
	workers     int
	noBuild     bool
	force       bool
	truncate    bool
}

func newConvertCmd(a *app) *cobra.Command {
	f := &convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert <archive|dir>...",
		Short: "Stage archives and build their packages",
		Long: `Stage each archive under the output directory and run the package builder
on the generated project. Directories are scanned for .psarc files.

Example:
  dlcconv convert -o out song_p.psarc
  dlcconv convert -o out --no-build dlc/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, a, f, args)
		},
	}

	cmd.Flags().StringVarP(&f.outputDir, "output", "o", "", "Output directory")
	cmd.Flags().StringVar(&f.title, "title", "", "Title (single archive only)")
	cmd.Flags().StringVar(&f.contentID, "content-id", "", "Content identifier (single archive only)")
	cmd.Flags().StringVar(&f.catalogPath, "catalog", "", "DLC catalog file")
	cmd.Flags().StringVar(&f.toolPath, "tool", "", "Package builder executable")
	cmd.Flags().StringVar(&f.iconPath, "icon", "", "PNG icon (default 1x1 placeholder)")
	cmd.Flags().IntVarP(&f.workers, "workers", "j", 0, "Concurrent conversions")
	cmd.Flags().BoolVar(&f.noBuild, "no-build", false, "Stage only, do not run the package builder")
	cmd.Flags().BoolVar(&f.force, "force", false, "Replace existing staging directories")
	cmd.Flags().BoolVar(&f.truncate, "truncate", false, "Truncate over-long titles instead of failing")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runConvert(cmd *cobra.Command, a *app, f *convertFlags, args []string) error {
	var archives []string
	for _, arg := range args {
		found, err := convert.ScanArchives(arg)
		if err != nil {
			return err
		}
		archives = append(archives, found...)
	}
	if len(archives) == 0 {
		return fmt.Errorf("no archives found")
	}
	if len(archives) > 1 && (f.title != "" || f.contentID != "") {
		return fmt.Errorf("--title and --content-id require a single archive")
	}

	if err := os.MkdirAll(f.outputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	opts, err := convertOptions(a.cfg, f)
	if err != nil {
		return err
	}

	var options []convert.Option
	options = append(options, convert.WithLogger(a.log))

	workers := a.cfg.Workers
	if f.workers > 0 {
		workers = f.workers
	}
	options = append(options, convert.WithWorkers(workers))

	catalogPath := a.cfg.Catalog
	if f.catalogPath != "" {
		catalogPath = f.catalogPath
	}
	if catalogPath != "" {
		cat, err := catalog.Load(catalogPath)
		if err != nil {
			return err
		}
		a.log.Debug("catalog loaded", "path", catalogPath, "entries", cat.Len())
		options = append(options, convert.WithCatalog(cat))
	}

	if !f.noBuild && a.cfg.Tool.Enabled {
		tool := a.cfg.Tool.Path
		if f.toolPath != "" {
			tool = f.toolPath
		}
		runner, err := pubtool.NewRunner(tool)
		if err != nil {
			return err
		}
		options = append(options, convert.WithBuilder(runner))
	}

	jobs := convert.Jobs(archives, f.outputDir)
	jobs[0].Title = f.title
	jobs[0].ContentID = f.contentID

	report, err := convert.New(opts, options...).Batch(cmd.Context(), jobs)
	for _, res := range report.Results {
		if res == nil {
			continue
		}
		out := res.Project
		if res.Package != "" {
			out = res.Package
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", res.ContentID, res.Title, out)
	}
	return err
}

func convertOptions(cfg *config.Config, f *convertFlags) (convert.Options, error) {
	opts := convert.Options{
		Region:        cfg.Region,
		TitleID:       cfg.TitleID,
		Version:       cfg.Version,
		Passcode:      cfg.Passcode,
		MaxTitleBytes: cfg.Title.MaxBytes,
		TitlePolicy:   cfg.TitlePolicy(),
		TitlePrefix:   cfg.Title.Prefix,
		Compress:      cfg.Staging.Compress,
		Force:         cfg.Staging.Force || f.force,
	}
	if f.truncate {
		opts.TitlePolicy = gp4.TitleTruncate
	}

	if f.iconPath != "" {
		icon, err := os.ReadFile(f.iconPath)
		if err != nil {
			return opts, fmt.Errorf("read icon: %w", err)
		}
		opts.Icon = icon
	}
	return opts, nil
}
