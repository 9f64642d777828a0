package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-sync/internal/api"
	"github.com/sells-group/listing-sync/internal/batch"
)

var (
	batchTargets     string
	batchConcurrency int
)

type batchItem struct {
	Target   string       `json:"target"`
	Response api.Response `json:"response"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every search in a targets file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		targets, err := batch.LoadTargets(batchTargets)
		if err != nil {
			return err
		}

		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrent = batchConcurrency
		}
		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		outcomes := batch.Run(ctx, env.Coordinator, targets, cfg.Batch.MaxConcurrent, os.LookupEnv)
		succeeded, failed := batch.Summary(outcomes)

		zap.L().Info("batch complete",
			zap.Int("targets", len(targets)),
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
			zap.Duration("duration", time.Since(start)),
		)

		items := make([]batchItem, len(outcomes))
		for i, o := range outcomes {
			items[i] = batchItem{Target: o.Target, Response: api.BuildResponse(o.Result)}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			return err
		}
		if failed > 0 {
			return eris.Errorf("batch: %d of %d targets failed", failed, len(targets))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchTargets, "targets", "targets.yaml", "YAML file listing the searches to run")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent runs (default from config)")
	rootCmd.AddCommand(batchCmd)
}
