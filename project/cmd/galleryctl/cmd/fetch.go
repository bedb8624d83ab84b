package cmd

import (
	"errors"
	"fmt"

	"hackathon-gallery/project/infrastructure/tasks"
	"hackathon-gallery/project/infrastructure/whapi"
	"hackathon-gallery/project/service"

	"github.com/spf13/cobra"
)

func init() {
	fetchCmd.Flags().Int("limit", 0, "number of latest messages to fetch (default POLL_LIMIT)")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the latest group messages once and ingest them",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		rt, err := openRuntime(c.Context(), c)
		if err != nil {
			return err
		}
		defer rt.Close()

		if rt.cfg.WhapiToken == "" {
			return errors.New("WHAPI_TOKEN が未設定です")
		}
		if limit, _ := c.Flags().GetInt("limit"); limit > 0 {
			rt.cfg.PollLimit = limit
		}

		rc := service.NewReconciler(rt.store, rt.logger)
		ingest := service.NewIngestService(rt.cfg, rc, nil, rt.logger)
		poller := tasks.NewPoller(rt.cfg, whapi.NewClient(rt.cfg.WhapiBaseURL, rt.cfg.WhapiToken), ingest, rt.logger)

		n, err := poller.PollOnce(c.Context())
		if err != nil {
			return err
		}
		st := poller.Status()
		fmt.Fprintf(c.OutOrStdout(), "Fetched %d message(s) from %q (%s), processed %d.\n",
			st.LastFetched, st.GroupName, st.GroupID, n)
		return nil
	},
}
