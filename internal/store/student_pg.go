package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type StudentPG struct {
	db *pgxpool.Pool
}

func NewStudentPG(db *pgxpool.Pool) *StudentPG {
	return &StudentPG{db: db}
}

// Upsert inserts or updates by (national_id, tenant). The xmax = 0 check
// distinguishes a fresh insert from a conflict update.
func (r *StudentPG) Upsert(ctx context.Context, s *Student) (int64, bool, error) {
	const sql = `
		INSERT INTO students (national_id, tenant, full_name, email, city, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (national_id, tenant) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			updated_at = now()
		RETURNING id, (xmax = 0)`

	var (
		id      int64
		created bool
	)
	err := r.db.QueryRow(ctx, sql,
		s.NationalID, s.Tenant, s.FullName, s.Email, s.City, s.Country,
	).Scan(&id, &created)
	if err != nil {
		return 0, false, fmt.Errorf("upsert student %s: %w", s.NationalID, err)
	}
	return id, created, nil
}
