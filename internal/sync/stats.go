package sync

import (
	"sync"
	"time"
)

// State tracks where a tenant pass is in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateFetchingCatalog State = "fetching_catalog"
	StateClassifying     State = "classifying"
	StateFetchingPersons State = "fetching_persons"
	StateDeduplicating   State = "deduplicating"
	StateReconciling     State = "reconciling"
	StateDone            State = "done"
	StateAborted         State = "aborted"
)

// maxErrorSamples caps how many error messages a run keeps for diagnosis;
// the counter keeps counting past the cap.
const maxErrorSamples = 5

// Stats is the per-tenant accumulator. Record-level failures are folded in
// as values here, never thrown past the enclosing loop. The Record methods
// are safe for concurrent use by the person-fetch workers.
type Stats struct {
	Tenant string
	RunID  string
	State  State

	EntriesExamined     int
	CoursesCreated      int
	CoursesUpdated      int
	StudentsCreated     int
	StudentsUpdated     int
	EnrollmentsUpserted int
	Skipped             int
	Errors              int
	ErrorSamples        []string
	AbortReason         string

	StartedAt time.Time
	Duration  time.Duration

	mu sync.Mutex
}

// RecordError counts a record- or course-level failure and keeps the first
// few messages for the run summary.
func (s *Stats) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
	if len(s.ErrorSamples) < maxErrorSamples {
		s.ErrorSamples = append(s.ErrorSamples, err.Error())
	}
}

// RecordSkipped counts records dropped during validation (malformed CPFs).
func (s *Stats) RecordSkipped(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped += n
}

// CoursesUpserted is the audit-row counter: creates plus updates.
func (s *Stats) CoursesUpserted() int { return s.CoursesCreated + s.CoursesUpdated }

// StudentsUpserted is the audit-row counter: creates plus updates.
func (s *Stats) StudentsUpserted() int { return s.StudentsCreated + s.StudentsUpdated }

// Aborted reports whether the tenant pass ended in SourceRejected or
// exhausted connectivity retries.
func (s *Stats) Aborted() bool { return s.State == StateAborted }

// Summary aggregates every tenant's stats for one batch run.
type Summary struct {
	StartedAt time.Time
	Duration  time.Duration
	Tenants   []*Stats
}

// AbortedCount returns how many tenants ended aborted.
func (s *Summary) AbortedCount() int {
	n := 0
	for _, st := range s.Tenants {
		if st.Aborted() {
			n++
		}
	}
	return n
}

// TotalErrors sums record-level errors across tenants.
func (s *Summary) TotalErrors() int {
	n := 0
	for _, st := range s.Tenants {
		n += st.Errors
	}
	return n
}
