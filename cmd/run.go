package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/listing-sync/internal/api"
	"github.com/sells-group/listing-sync/internal/pipeline"
)

var (
	runURL     string
	runFilters map[string]string
	runDryRun  bool
	runCookie  credentialSource
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape one search page and store its listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := runCookie.read(cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Coordinator.Run(ctx, pipeline.Invocation{
			URL:        runURL,
			Credential: raw,
			Filters:    runFilters,
			DryRun:     runDryRun,
		})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(api.BuildResponse(res)); err != nil {
			return err
		}
		return exitStatus(res)
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "search page URL (default from marketplace.search_url)")
	runCmd.Flags().StringToStringVar(&runFilters, "filter", nil, "search filter as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "render and classify only; skip extraction and storage")
	runCmd.Flags().StringVar(&runCookie.env, "cookie-env", defaultCookieEnv, "environment variable holding the session cookie")
	runCmd.Flags().BoolVar(&runCookie.stdin, "cookie-stdin", false, "read the session cookie from stdin")
	rootCmd.AddCommand(runCmd)
}
