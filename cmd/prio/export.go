package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/export"
	"github.com/prioritylab/prio/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: GroupSync,
	Short:   "Write every task to stdout or a file",
	Long: `Write a snapshot of every task, completed ones included, in tree order.

The format defaults to the --output file extension, or JSON on stdout.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		output, _ := cmd.Flags().GetString("output")
		formatFlag, _ := cmd.Flags().GetString("format")

		format := export.FormatJSON
		if output != "" {
			format = export.FormatForPath(output)
		}
		if formatFlag != "" {
			f, err := export.ParseFormat(formatFlag)
			if err != nil {
				fail(err)
			}
			format = f
		}

		snap, err := export.Build(ctx, store, store.Path(), time.Now())
		if err != nil {
			fail(err)
		}

		if output == "" || output == "-" {
			if err := export.Write(os.Stdout, format, snap); err != nil {
				fail(err)
			}
			return
		}
		if err := export.WriteFile(output, format, snap); err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"path": output, "format": format, "tasks": snap.TaskCount})
			return
		}
		fmt.Fprintf(os.Stderr, "%s Exported %s to %s\n", ui.RenderPass(ui.IconPass), plural(snap.TaskCount, "task"), output)
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "", "Output format: json, yaml or toml")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
