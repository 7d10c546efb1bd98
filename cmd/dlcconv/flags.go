package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EchoTools/dlcconv/pkg/psarc"
)

func newFlagsCmd(a *app) *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "flags <archive>...",
		Short: "Show or set the platform flags of PSARC archives",
		Long: `Show the platform flags of each archive. With --set, the flags field is
rewritten in place; nothing else in the file changes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				flags uint32
				patch bool
			)
			switch set {
			case "":
			case "pc":
				flags, patch = psarc.FlagsPC, true
			case "console":
				flags, patch = psarc.FlagsConsole, true
			default:
				return fmt.Errorf("unknown platform %q", set)
			}

			for _, path := range args {
				if patch {
					old, err := psarc.SetFlags(path, flags)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					a.log.Info("flags set", "archive", path, "old", old, "new", flags)
				}

				h, err := psarc.ReadHeaderFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\tv%d.%d\t%s\t%d files\n",
					path, h.Platform(), h.Flags, h.VersionMajor, h.VersionMinor, h.CompressionName(), h.FileCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&set, "set", "", "Rewrite flags for a platform: pc or console")
	return cmd
}
