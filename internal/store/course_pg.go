package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CoursePG struct {
	db *pgxpool.Pool
}

func NewCoursePG(db *pgxpool.Pool) *CoursePG {
	return &CoursePG{db: db}
}

// Upsert looks the course up by (external_ref, tenant) first, then by
// (display_name, tenant) to absorb external-id churn between syncs. A
// match updates the mutable fields (and re-pins external_ref); otherwise
// a new row is inserted. The primary key, creation timestamp and
// default_value of an existing row are never touched.
func (r *CoursePG) Upsert(ctx context.Context, c *Course) (int64, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM courses WHERE external_ref = $1 AND tenant = $2`,
		c.ExternalRef, c.Tenant,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx,
			`SELECT id FROM courses WHERE display_name = $1 AND tenant = $2`,
			c.DisplayName, c.Tenant,
		).Scan(&id)
	}

	switch {
	case err == nil:
		const updateSQL = `
			UPDATE courses SET
				external_ref = $1,
				display_name = $2,
				short_name = $3,
				structural_type = $4,
				parent_name = $5,
				active = $6,
				updated_at = now()
			WHERE id = $7`
		if _, err := tx.Exec(ctx, updateSQL,
			c.ExternalRef, c.DisplayName, c.ShortName, c.StructuralType, c.ParentName, c.Active, id,
		); err != nil {
			return 0, false, fmt.Errorf("update course %d: %w", id, err)
		}
		return id, false, tx.Commit(ctx)

	case errors.Is(err, pgx.ErrNoRows):
		const insertSQL = `
			INSERT INTO courses (external_ref, display_name, short_name, structural_type, parent_name, tenant, active, default_value, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			RETURNING id`
		if err := tx.QueryRow(ctx, insertSQL,
			c.ExternalRef, c.DisplayName, c.ShortName, c.StructuralType, c.ParentName, c.Tenant, c.Active, c.DefaultValue,
		).Scan(&id); err != nil {
			return 0, false, fmt.Errorf("insert course %q: %w", c.DisplayName, err)
		}
		return id, true, tx.Commit(ctx)

	default:
		return 0, false, fmt.Errorf("lookup course %q: %w", c.DisplayName, err)
	}
}

// Deactivate soft-disables a course; the engine never hard-deletes.
func (r *CoursePG) Deactivate(ctx context.Context, tenantSub string, externalRef int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE courses SET active = false, updated_at = now() WHERE external_ref = $1 AND tenant = $2`,
		externalRef, tenantSub,
	)
	return err
}
