package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"hackathon-gallery/project/service"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List gallery projects, newest first",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		rt, err := openRuntime(c.Context(), c)
		if err != nil {
			return err
		}
		defer rt.Close()

		views, summary, err := service.NewGalleryService(rt.store).ListProjects(c.Context())
		if err != nil {
			return err
		}
		printProjects(c.OutOrStdout(), views, summary, time.Now())
		return nil
	},
}

func printProjects(w io.Writer, views []service.ProjectView, summary service.GallerySummary, now time.Time) {
	if summary.TotalCount == 0 {
		fmt.Fprintln(w, "No projects yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTEAM\tURL\tREACTIONS\tREPLIES\tPOSTED")
	for _, v := range views {
		p := v.Record
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name,
			p.TeamName(),
			p.URL,
			humanize.Comma(int64(v.TotalReactions)),
			humanize.Comma(int64(v.TotalReplies)),
			humanize.RelTime(p.Timestamp, now, "ago", "from now"),
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%s project(s), last updated %s\n",
		humanize.Comma(int64(summary.TotalCount)),
		humanize.RelTime(*summary.LastUpdated, now, "ago", "from now"))
}
