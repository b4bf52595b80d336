package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EnrollmentPG struct {
	db *pgxpool.Pool
}

func NewEnrollmentPG(db *pgxpool.Pool) *EnrollmentPG {
	return &EnrollmentPG{db: db}
}

func (r *EnrollmentPG) Upsert(ctx context.Context, studentID, courseID int64, status string) (int64, error) {
	const sql = `
		INSERT INTO enrollments (student_id, course_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (student_id, course_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = now()
		RETURNING id`

	var id int64
	if err := r.db.QueryRow(ctx, sql, studentID, courseID, status).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert enrollment student=%d course=%d: %w", studentID, courseID, err)
	}
	return id, nil
}

// Deactivate marks an enrollment inativa. Kept for operator tooling; the
// sync path never calls it when an enrollment goes missing from a later
// sync (policy: never auto-deactivate).
func (r *EnrollmentPG) Deactivate(ctx context.Context, studentID, courseID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE enrollments SET status = $1, updated_at = now() WHERE student_id = $2 AND course_id = $3`,
		EnrollmentInactive, studentID, courseID,
	)
	return err
}
