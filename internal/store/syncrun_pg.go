package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type SyncRunPG struct {
	db *pgxpool.Pool
}

func NewSyncRunPG(db *pgxpool.Pool) *SyncRunPG {
	return &SyncRunPG{db: db}
}

func (r *SyncRunPG) Create(ctx context.Context, run *SyncRun) error {
	const sql = `
		INSERT INTO sync_runs (id, tenant, started_at, status)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, sql, run.ID, run.Tenant, run.StartedAt, run.Status); err != nil {
		return fmt.Errorf("create sync run %s: %w", run.ID, err)
	}
	return nil
}

func (r *SyncRunPG) Finish(ctx context.Context, run *SyncRun) error {
	const sql = `
		UPDATE sync_runs SET
			finished_at = $1,
			status = $2,
			entries_examined = $3,
			courses_upserted = $4,
			students_upserted = $5,
			errors_count = $6
		WHERE id = $7`
	if _, err := r.db.Exec(ctx, sql,
		run.FinishedAt, run.Status, run.EntriesExamined, run.CoursesUpserted, run.StudentsUpserted, run.ErrorsCount, run.ID,
	); err != nil {
		return fmt.Errorf("finish sync run %s: %w", run.ID, err)
	}
	return nil
}
