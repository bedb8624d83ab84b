package cmd

import (
	"fmt"
	"io"

	"hackathon-gallery/project/service"

	"github.com/spf13/cobra"
)

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "report duplicates without modifying the store")
	rootCmd.AddCommand(cleanupCmd)
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Collapse duplicate project records into the oldest one",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		dryRun, _ := c.Flags().GetBool("dry-run")

		rt, err := openRuntime(c.Context(), c)
		if err != nil {
			return err
		}
		defer rt.Close()

		rc := service.NewReconciler(rt.store, rt.logger)
		result, err := rc.CollapseDuplicates(c.Context(), dryRun)
		if err != nil {
			return err
		}
		printCleanup(c.OutOrStdout(), result, dryRun)
		return nil
	},
}

func printCleanup(w io.Writer, result *service.CleanupResult, dryRun bool) {
	if len(result.Removed) == 0 {
		fmt.Fprintf(w, "No duplicates found (%d projects).\n", result.Before)
		return
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	fmt.Fprintf(w, "%s %d duplicate(s):\n", verb, len(result.Removed))
	for _, id := range result.Removed {
		fmt.Fprintf(w, "  - %s\n", id)
	}
	fmt.Fprintf(w, "Projects: %d -> %d\n", result.Before, result.After)
}
