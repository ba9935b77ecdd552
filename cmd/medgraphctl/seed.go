package main

import (
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/seed"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demonstration graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := seed.Demo(ctx, store.NewRevisionStore(pool))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "drug entity %s\noutcome entity %s\n", res.Drug, res.Outcome)
		return err
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
