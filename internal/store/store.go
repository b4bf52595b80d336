// Package store owns the write path into the relational store: natural-key
// upserts for courses, students and enrollments, plus the sync_runs audit
// table. Each operation runs in its own short transaction so concurrent
// tenant workers contend as little as possible.
package store

import (
	"context"
	"time"
)

// Enrollment statuses.
const (
	EnrollmentActive   = "ativa"
	EnrollmentInactive = "inativa"
)

// Sync run statuses.
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusAborted = "aborted"
)

type Course struct {
	ID             int64
	ExternalRef    int64
	DisplayName    string
	ShortName      string
	StructuralType string
	ParentName     string
	Tenant         string
	Active         bool
	DefaultValue   float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Student struct {
	ID         int64
	NationalID string
	Tenant     string
	FullName   string
	Email      string
	City       string
	Country    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Enrollment struct {
	ID        int64
	StudentID int64
	CourseID  int64
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncRun is the persisted audit record of one tenant pass.
type SyncRun struct {
	ID               string
	Tenant           string
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           string
	EntriesExamined  int
	CoursesUpserted  int
	StudentsUpserted int
	ErrorsCount      int
}

// CourseStore upserts by (external_ref, tenant) with a (display_name,
// tenant) fallback for unstable external ids. created reports whether a
// new row was inserted.
type CourseStore interface {
	Upsert(ctx context.Context, c *Course) (id int64, created bool, err error)
	Deactivate(ctx context.Context, tenantSub string, externalRef int64) error
}

// StudentStore upserts by (national_id, tenant).
type StudentStore interface {
	Upsert(ctx context.Context, s *Student) (id int64, created bool, err error)
}

// EnrollmentStore upserts by (student_id, course_id). Deactivate exists for
// operator tooling; the sync path never deactivates enrollments on absence.
type EnrollmentStore interface {
	Upsert(ctx context.Context, studentID, courseID int64, status string) (id int64, err error)
	Deactivate(ctx context.Context, studentID, courseID int64) error
}

// SyncRunStore records per-tenant run audit rows.
type SyncRunStore interface {
	Create(ctx context.Context, run *SyncRun) error
	Finish(ctx context.Context, run *SyncRun) error
}
