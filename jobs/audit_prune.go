package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/proeftuin/agrigate/internal/jobs"
)

// AuditPruneJob deletes audit entries older than the retention window.
type AuditPruneJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditPruneJob constructs the job.
func NewAuditPruneJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPruneJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPruneJob{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditPrune tasks.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("audit_prune")
	cutoff := time.Now().UTC().Add(-payload.Retention)
	tag, err := j.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	j.metrics.AddPruned("audit_logs", tag.RowsAffected())
	j.logger.Info("audit prune completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", tag.RowsAffected()),
	)
	return tracker.End(nil)
}
