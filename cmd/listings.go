package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-sync/internal/store"
)

var (
	listingsSource string
	listingsLimit  int
	listingsOffset int
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Print stored listings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		listings, err := st.ListListings(ctx, store.ListFilter{
			SourceURL: listingsSource,
			Limit:     listingsLimit,
			Offset:    listingsOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	},
}

func init() {
	listingsCmd.Flags().StringVar(&listingsSource, "source", "", "only listings last seen on this source URL")
	listingsCmd.Flags().IntVar(&listingsLimit, "limit", 100, "max listings to print")
	listingsCmd.Flags().IntVar(&listingsOffset, "offset", 0, "listings to skip")
	rootCmd.AddCommand(listingsCmd)
}
