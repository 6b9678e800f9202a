package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kefir-c/difftest/internal/compdb"
	"github.com/kefir-c/difftest/internal/logger"
)

// NewCompdbCommand creates the compdb subcommand, which exports a
// compilation database from the build's per-object command files.
func NewCompdbCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compdb",
		Short: "Export a compilation database from four-line command files",
		Long: `compdb scans a directory tree for command files. Each holds four lines:
the working directory, the source file, the build target and the compile
command. By default every file is read and those of any other shape are
skipped. --pattern restricts the scan to matching base names, and then
files of the wrong shape are reported as warnings.

--cmd-files prints the absolute path of every command file.
--compile-commands prints a JSON array of {directory, file, command}.`,
		Args: cobra.NoArgs,
		RunE: runCompdb,
	}

	cmd.Flags().String("compile-commands", "", "print a JSON compilation database for command files under `DIR`")
	cmd.Flags().String("cmd-files", "", "print the paths of command files under `DIR`")
	cmd.Flags().String("pattern", compdb.DefaultPattern, "only read files whose base name matches `GLOB`")
	cmd.MarkFlagsMutuallyExclusive("compile-commands", "cmd-files")
	cmd.MarkFlagsOneRequired("compile-commands", "cmd-files")

	return cmd
}

func runCompdb(cmd *cobra.Command, _ []string) error {
	pattern, _ := cmd.Flags().GetString("pattern")
	log := logger.NewConsoleLogger(cmd.ErrOrStderr(), "warn")

	if dir, _ := cmd.Flags().GetString("cmd-files"); dir != "" {
		entries, err := compdb.Scan(dir, pattern, log)
		if err != nil {
			return err
		}
		return compdb.WritePaths(cmd.OutOrStdout(), entries)
	}

	dir, _ := cmd.Flags().GetString("compile-commands")
	entries, err := compdb.Scan(dir, pattern, log)
	if err != nil {
		return err
	}
	return compdb.WriteJSON(cmd.OutOrStdout(), entries)
}
