// Package sync drives the per-tenant roster synchronization workflow:
// fetch the remote catalog, classify it, fetch enrolled persons, dedup,
// and reconcile into the local store. One tenant's total failure never
// prevents other tenants from being attempted.
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"polosync/internal/classify"
	"polosync/internal/moodle"
	"polosync/internal/roster"
	"polosync/internal/store"
	"polosync/internal/tenant"
)

// Source is the slice of the Moodle client the orchestrator consumes.
type Source interface {
	FetchCatalog(ctx context.Context, t tenant.Tenant) ([]moodle.CatalogEntry, error)
	GetEnrolledUsers(ctx context.Context, t tenant.Tenant, courseID int64) ([]moodle.EnrolledUser, error)
}

type Options struct {
	// TenantWorkers bounds how many tenants sync concurrently.
	TenantWorkers int
	// CourseWorkers bounds concurrent person fetches within one tenant.
	CourseWorkers int
	// MaxAttempts bounds retries of a call that failed as unavailable.
	MaxAttempts int
	// RetryDelay is the base delay, doubled on each attempt.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TenantWorkers <= 0 {
		o.TenantWorkers = 3
	}
	if o.CourseWorkers <= 0 {
		o.CourseWorkers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	return o
}

type Orchestrator struct {
	source      Source
	courses     store.CourseStore
	students    store.StudentStore
	enrollments store.EnrollmentStore
	runs        store.SyncRunStore
	opts        Options
	logger      *zap.Logger
}

func NewOrchestrator(
	source Source,
	courses store.CourseStore,
	students store.StudentStore,
	enrollments store.EnrollmentStore,
	runs store.SyncRunStore,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		source:      source,
		courses:     courses,
		students:    students,
		enrollments: enrollments,
		runs:        runs,
		opts:        opts.withDefaults(),
		logger:      logger,
	}
}

// Run processes the given tenants, up to TenantWorkers at a time. Tenants
// are independent; the summary keeps their input order. Cancellation stops
// in-flight work but already-committed upserts stay committed and every
// started tenant still finalizes its partial stats.
func (o *Orchestrator) Run(ctx context.Context, tenants []tenant.Tenant) *Summary {
	summary := &Summary{StartedAt: time.Now(), Tenants: make([]*Stats, len(tenants))}

	// errgroup is used purely as a bounded pool; tenant goroutines never
	// return errors (failure isolation lives in Stats).
	var g errgroup.Group
	g.SetLimit(o.opts.TenantWorkers)
	for i, t := range tenants {
		i, t := i, t
		g.Go(func() error {
			summary.Tenants[i] = o.syncTenant(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(summary.StartedAt)
	return summary
}

func (o *Orchestrator) syncTenant(ctx context.Context, t tenant.Tenant) *Stats {
	log := o.logger.With(zap.String("tenant", t.Subdomain))
	st := &Stats{
		Tenant:    t.Subdomain,
		RunID:     uuid.NewString(),
		State:     StateIdle,
		StartedAt: time.Now(),
	}

	run := &store.SyncRun{
		ID:        st.RunID,
		Tenant:    t.Subdomain,
		StartedAt: st.StartedAt,
		Status:    store.RunStatusRunning,
	}
	if err := o.runs.Create(ctx, run); err != nil {
		// The audit sink must not block the sync itself.
		log.Warn("could not create sync run audit row", zap.Error(err))
	}
	defer o.finalize(ctx, run, st, log)

	st.State = StateFetchingCatalog
	catalog, err := fetchWithRetry(ctx, o.opts, log, func(ctx context.Context) ([]moodle.CatalogEntry, error) {
		return o.source.FetchCatalog(ctx, t)
	})
	if err != nil {
		st.State = StateAborted
		st.AbortReason = err.Error()
		st.RecordError(err)
		log.Error("catalog fetch failed, tenant aborted", zap.Error(err))
		return st
	}
	st.EntriesExamined = len(catalog)

	st.State = StateClassifying
	courses := classify.Classify(catalog, classifyConfig(t))
	log.Info("catalog classified",
		zap.Int("entries", len(catalog)),
		zap.Int("courses", len(courses)))

	st.State = StateFetchingPersons
	batches := o.fetchPersons(ctx, t, courses, st, log)

	st.State = StateDeduplicating
	var people []moodle.EnrolledUser
	for _, b := range batches {
		people = append(people, b.users...)
	}
	unique, skipped := roster.Dedup(people)
	st.RecordSkipped(skipped)

	st.State = StateReconciling
	o.reconcile(ctx, t, courses, unique, batches, st, log)

	if ctx.Err() != nil {
		// Partial results stay committed; the run reports what it managed.
		st.RecordError(ctx.Err())
	}
	st.State = StateDone
	log.Info("tenant sync done",
		zap.Int("courses_created", st.CoursesCreated),
		zap.Int("courses_updated", st.CoursesUpdated),
		zap.Int("students_created", st.StudentsCreated),
		zap.Int("students_updated", st.StudentsUpdated),
		zap.Int("enrollments", st.EnrollmentsUpserted),
		zap.Int("skipped", st.Skipped),
		zap.Int("errors", st.Errors))
	return st
}

// fetchWithRetry retries only UnavailableError, with exponential delay; a
// remote rejection (APIError) or allowlist violation fails immediately.
func fetchWithRetry[T any](ctx context.Context, opts Options, log *zap.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := opts.RetryDelay * time.Duration(1<<(attempt-1))
			log.Warn("source unavailable, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		var unavailable *moodle.UnavailableError
		if !errors.As(err, &unavailable) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

type personBatch struct {
	course classify.Course
	users  []moodle.EnrolledUser
}

// fetchPersons fetches enrolled users for every classified course through a
// small bounded worker pool. A failure for one course is counted and the
// rest of the courses still proceed.
func (o *Orchestrator) fetchPersons(ctx context.Context, t tenant.Tenant, courses []classify.Course, st *Stats, log *zap.Logger) []personBatch {
	if len(courses) == 0 {
		return nil
	}

	jobs := make(chan int)
	results := make([]personBatch, len(courses))
	fetched := make([]bool, len(courses))

	workers := o.opts.CourseWorkers
	if len(courses) < workers {
		workers = len(courses)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c := courses[i]
				users, err := fetchWithRetry(ctx, o.opts, log, func(ctx context.Context) ([]moodle.EnrolledUser, error) {
					return o.source.GetEnrolledUsers(ctx, t, c.ExternalID)
				})
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					st.RecordError(err)
					log.Warn("person fetch failed for course",
						zap.Int64("course", c.ExternalID),
						zap.String("name", c.Name),
						zap.Error(err))
					continue
				}
				results[i] = personBatch{course: c, users: users}
				fetched[i] = true
			}
		}()
	}

feed:
	for i := range courses {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var out []personBatch
	for i, ok := range fetched {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

// reconcile upserts classified courses, deduplicated students and their
// enrollments, in that order. Failures are per-record: one student's
// failed write never rolls back previously committed rows.
func (o *Orchestrator) reconcile(ctx context.Context, t tenant.Tenant, courses []classify.Course, people []moodle.EnrolledUser, batches []personBatch, st *Stats, log *zap.Logger) {
	courseIDs := make(map[int64]int64, len(courses))
	for _, c := range courses {
		if ctx.Err() != nil {
			return
		}
		id, created, err := o.courses.Upsert(ctx, &store.Course{
			ExternalRef:    c.ExternalID,
			DisplayName:    c.Name,
			ShortName:      c.ShortName,
			StructuralType: string(c.StructuralType),
			ParentName:     c.ParentName,
			Tenant:         t.Subdomain,
			Active:         true,
			DefaultValue:   t.DefaultCourseValue,
		})
		if err != nil {
			st.RecordError(err)
			log.Warn("course upsert failed", zap.String("course", c.Name), zap.Error(err))
			continue
		}
		courseIDs[c.ExternalID] = id
		if created {
			st.CoursesCreated++
		} else {
			st.CoursesUpdated++
		}
	}

	studentIDs := make(map[string]int64, len(people))
	for _, p := range people {
		if ctx.Err() != nil {
			return
		}
		cpf, ok := roster.NormalizeCPF(p.IDNumber)
		if !ok {
			continue // dedup already counted it
		}
		id, created, err := o.students.Upsert(ctx, &store.Student{
			NationalID: cpf,
			Tenant:     t.Subdomain,
			FullName:   p.FullName,
			Email:      p.Email,
			City:       p.City,
			Country:    p.Country,
		})
		if err != nil {
			st.RecordError(err)
			log.Warn("student upsert failed", zap.String("cpf", cpf), zap.Error(err))
			continue
		}
		studentIDs[cpf] = id
		if created {
			st.StudentsCreated++
		} else {
			st.StudentsUpdated++
		}
	}

	for _, b := range batches {
		courseID, ok := courseIDs[b.course.ExternalID]
		if !ok {
			continue
		}
		for _, u := range b.users {
			if ctx.Err() != nil {
				return
			}
			cpf, ok := roster.NormalizeCPF(u.IDNumber)
			if !ok {
				continue
			}
			studentID, ok := studentIDs[cpf]
			if !ok {
				continue // student upsert failed, already counted
			}
			if _, err := o.enrollments.Upsert(ctx, studentID, courseID, store.EnrollmentActive); err != nil {
				st.RecordError(err)
				continue
			}
			st.EnrollmentsUpserted++
		}
	}
}

func (o *Orchestrator) finalize(ctx context.Context, run *store.SyncRun, st *Stats, log *zap.Logger) {
	st.Duration = time.Since(st.StartedAt)

	now := time.Now()
	run.FinishedAt = &now
	run.Status = store.RunStatusDone
	if st.Aborted() {
		run.Status = store.RunStatusAborted
	}
	run.EntriesExamined = st.EntriesExamined
	run.CoursesUpserted = st.CoursesUpserted()
	run.StudentsUpserted = st.StudentsUpserted()
	run.ErrorsCount = st.Errors

	// Finalize even when the batch was cancelled.
	finishCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.runs.Finish(finishCtx, run); err != nil {
		log.Warn("could not finalize sync run audit row", zap.Error(err))
	}
}

func classifyConfig(t tenant.Tenant) classify.Config {
	return classify.Config{
		AnchorCategory:    t.AnchorCategory,
		RequiredKeywords:  t.RequiredKeywords,
		ForbiddenKeywords: t.ForbiddenKeywords,
		MaxNameWords:      t.MaxNameWords,
		MinEnrollment:     t.MinEnrollment,
	}
}
