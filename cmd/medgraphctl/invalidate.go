package main

import (
	"fmt"

	"github.com/Harshitk-cp/medgraph/internal/config"
	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/Harshitk-cp/medgraph/internal/service"
	"github.com/Harshitk-cp/medgraph/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Delete computed relations and notify running servers",
}

var invalidateRelationCmd = &cobra.Command{
	Use:   "relation <relation-id>",
	Short: "Invalidate every computed relation that used a relation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid relation id: %w", err)
		}
		return runInvalidate(cmd, domain.InvalidationEvent{Kind: domain.InvalidateRelation, ID: id})
	},
}

var invalidateEntityCmd = &cobra.Command{
	Use:   "entity <entity-id>",
	Short: "Invalidate every computed relation owned by an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid entity id: %w", err)
		}
		return runInvalidate(cmd, domain.InvalidationEvent{Kind: domain.InvalidateEntity, ID: id})
	},
}

var invalidateScopeCmd = &cobra.Command{
	Use:   "scope <scope-hash>",
	Short: "Invalidate every model version cached under a scope hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := domain.ParseInvalidationEvent(string(domain.InvalidateScope) + ":" + args[0])
		if err != nil {
			return err
		}
		return runInvalidate(cmd, ev)
	},
}

func init() {
	invalidateCmd.AddCommand(invalidateRelationCmd, invalidateEntityCmd, invalidateScopeCmd)
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, ev domain.InvalidationEvent) error {
	ctx := cmd.Context()
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	cache := service.NewComputedRelationCache(store.NewComputedRelationStore(pool), logger)

	var deleted int64
	switch ev.Kind {
	case domain.InvalidateScope:
		deleted, err = cache.InvalidateScope(ctx, ev.ScopeHash)
	case domain.InvalidateEntity:
		deleted, err = cache.InvalidateEntity(ctx, ev.ID)
	default:
		deleted, err = cache.InvalidateRelation(ctx, ev.ID)
	}
	if err != nil {
		return err
	}

	notifier := store.NewNotifier(pool, config.InvalidationChannel(), logger)
	if err := notifier.Publish(ctx, ev); err != nil {
		logger.Warn("failed to notify servers", zap.Error(err))
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d computed relation(s) for %s\n", deleted, ev.Payload())
	return err
}
