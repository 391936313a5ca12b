package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizblitz-service/internal/config"
	"quizblitz-service/internal/domain"
	mongoinfra "quizblitz-service/internal/infra/mongo"
)

// NewCleanupEventsCmd prunes legacy per-tick timer_update rows from the event
// log. Current deployments never write them (remaining time is derived from
// the question anchor), but databases migrated from older deployments carry
// millions of stale rows.
func NewCleanupEventsCmd(configPath *string) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup-events",
		Short: "Delete legacy timer_update event rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd.Context(), *configPath, olderThan)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "only delete rows older than this")
	return cmd
}

func runCleanup(ctx context.Context, configPath string, olderThan time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Mongo.URI == "" {
		return fmt.Errorf("mongo uri not configured")
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	client, err := mongoinfra.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	eventLog := mongoinfra.NewEventLog(client.Database(cfg.Mongo.Database))
	cutoff := time.Now().Add(-olderThan)
	removed, err := eventLog.DeleteOldByTypes(ctx, []domain.EventType{domain.EventTimerUpdate}, cutoff)
	if err != nil {
		return err
	}
	log.Info("event cleanup done",
		zap.Int64("removed", removed),
		zap.Time("cutoff", cutoff))
	return nil
}
