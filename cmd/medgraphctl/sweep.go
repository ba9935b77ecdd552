package main

import (
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/config"
	"github.com/Harshitk-cp/medgraph/internal/service"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/spf13/cobra"
)

var sweepModelVersion string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete computed relations from superseded model versions",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepModelVersion, "model-version", "", "Version to keep (defaults to INFERENCE_MODEL_VERSION)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	version := sweepModelVersion
	if version == "" {
		version = config.InferenceModelVersion()
	}

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	deleted, err := service.NewSweeperService(store.NewComputedRelationStore(pool), version, logger).Sweep(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d computed relation(s) not at %s\n", deleted, version)
	return err
}
