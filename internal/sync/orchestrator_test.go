package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"polosync/internal/moodle"
	"polosync/internal/store"
	"polosync/internal/tenant"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchCatalog(ctx context.Context, t tenant.Tenant) ([]moodle.CatalogEntry, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]moodle.CatalogEntry), args.Error(1)
}

func (m *mockSource) GetEnrolledUsers(ctx context.Context, t tenant.Tenant, courseID int64) ([]moodle.EnrolledUser, error) {
	args := m.Called(ctx, t, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]moodle.EnrolledUser), args.Error(1)
}

// In-memory stores that honor the same natural-key contracts as the
// Postgres implementations.

type memCourses struct {
	mu     sync.Mutex
	seq    int64
	byRef  map[string]int64
	byName map[string]int64
	rows   map[int64]store.Course
	fail   map[int64]error
}

func newMemCourses() *memCourses {
	return &memCourses{
		byRef:  map[string]int64{},
		byName: map[string]int64{},
		rows:   map[int64]store.Course{},
		fail:   map[int64]error{},
	}
}

func (m *memCourses) Upsert(_ context.Context, c *store.Course) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[c.ExternalRef]; err != nil {
		return 0, false, err
	}
	refKey := fmt.Sprintf("%d|%s", c.ExternalRef, c.Tenant)
	nameKey := c.DisplayName + "|" + c.Tenant

	id, ok := m.byRef[refKey]
	if !ok {
		id, ok = m.byName[nameKey]
	}
	if ok {
		row := m.rows[id]
		delete(m.byRef, fmt.Sprintf("%d|%s", row.ExternalRef, row.Tenant))
		row.ExternalRef = c.ExternalRef
		row.DisplayName = c.DisplayName
		row.ShortName = c.ShortName
		row.StructuralType = c.StructuralType
		row.Active = c.Active
		m.rows[id] = row
		m.byRef[refKey] = id
		m.byName[nameKey] = id
		return id, false, nil
	}

	m.seq++
	id = m.seq
	row := *c
	row.ID = id
	m.rows[id] = row
	m.byRef[refKey] = id
	m.byName[nameKey] = id
	return id, true, nil
}

func (m *memCourses) Deactivate(_ context.Context, tenantSub string, externalRef int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byRef[fmt.Sprintf("%d|%s", externalRef, tenantSub)]; ok {
		row := m.rows[id]
		row.Active = false
		m.rows[id] = row
	}
	return nil
}

type memStudents struct {
	mu   sync.Mutex
	seq  int64
	byID map[string]int64
	rows map[int64]store.Student
	fail map[string]error
}

func newMemStudents() *memStudents {
	return &memStudents{byID: map[string]int64{}, rows: map[int64]store.Student{}, fail: map[string]error{}}
}

func (m *memStudents) Upsert(_ context.Context, s *store.Student) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[s.NationalID]; err != nil {
		return 0, false, err
	}
	key := s.NationalID + "|" + s.Tenant
	if id, ok := m.byID[key]; ok {
		row := m.rows[id]
		row.FullName = s.FullName
		row.Email = s.Email
		m.rows[id] = row
		return id, false, nil
	}
	m.seq++
	row := *s
	row.ID = m.seq
	m.rows[m.seq] = row
	m.byID[key] = m.seq
	return m.seq, true, nil
}

type memEnrollments struct {
	mu   sync.Mutex
	seq  int64
	byID map[string]int64
}

func newMemEnrollments() *memEnrollments {
	return &memEnrollments{byID: map[string]int64{}}
}

func (m *memEnrollments) Upsert(_ context.Context, studentID, courseID int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d|%d", studentID, courseID)
	if id, ok := m.byID[key]; ok {
		return id, nil
	}
	m.seq++
	m.byID[key] = m.seq
	return m.seq, nil
}

func (m *memEnrollments) Deactivate(_ context.Context, _, _ int64) error { return nil }

func (m *memEnrollments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memRuns struct {
	mu   sync.Mutex
	rows map[string]*store.SyncRun
}

func newMemRuns() *memRuns { return &memRuns{rows: map[string]*store.SyncRun{}} }

func (m *memRuns) Create(_ context.Context, run *store.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.rows[run.ID] = &cp
	return nil
}

func (m *memRuns) Finish(_ context.Context, run *store.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.rows[run.ID] = &cp
	return nil
}

func (m *memRuns) get(id string) *store.SyncRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func testTenantFixture(sub string) tenant.Tenant {
	return tenant.Tenant{
		Subdomain:         sub,
		BaseURL:           "https://" + sub + ".example.edu.br",
		Token:             "tok",
		Active:            true,
		AllowedFunctions:  tenant.DefaultAllowedFunctions,
		AnchorCategory:    "CURSOS TÉCNICOS",
		ForbiddenKeywords: tenant.DefaultForbiddenKeywords,
		MaxNameWords:      8,
		MinEnrollment:     1,
	}
}

func fixtureCatalog() []moodle.CatalogEntry {
	return []moodle.CatalogEntry{
		{ID: 4, Name: "CURSOS TÉCNICOS", ParentID: 0, Visible: true, Kind: moodle.KindCategory},
		{ID: 12, Name: "Técnico em Enfermagem", ParentID: 4, Enrolled: 2, Visible: true, Kind: moodle.KindCourse},
		{ID: 13, Name: "Técnico em Radiologia", ParentID: 4, Enrolled: 1, Visible: true, Kind: moodle.KindCourse},
	}
}

func fastOpts() Options {
	return Options{TenantWorkers: 2, CourseWorkers: 2, MaxAttempts: 3, RetryDelay: time.Millisecond}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	src := new(mockSource)
	courses, students, enrollments, runs := newMemCourses(), newMemStudents(), newMemEnrollments(), newMemRuns()
	o := NewOrchestrator(src, courses, students, enrollments, runs, fastOpts(), nil)

	tn := testTenantFixture("polonorte")
	src.On("FetchCatalog", mock.Anything, mock.Anything).Return(fixtureCatalog(), nil)
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, int64(12)).Return([]moodle.EnrolledUser{
		{ID: 1, IDNumber: "031.839.245-36", FullName: "Maria da Silva", Email: "maria@x.br"},
		{ID: 2, IDNumber: "520.117.330-05", FullName: "João Souza"},
		{ID: 3, IDNumber: "123", FullName: "Sem CPF"},
	}, nil)
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, int64(13)).Return([]moodle.EnrolledUser{
		// Maria again, enrolled in a second course.
		{ID: 1, IDNumber: "03183924536", FullName: "Maria da Silva"},
	}, nil)

	summary := o.Run(context.Background(), []tenant.Tenant{tn})
	require.Len(t, summary.Tenants, 1)
	st := summary.Tenants[0]

	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, 3, st.EntriesExamined)
	assert.Equal(t, 2, st.CoursesCreated)
	assert.Equal(t, 0, st.CoursesUpdated)
	assert.Equal(t, 2, st.StudentsCreated, "Maria must be written exactly once")
	assert.Equal(t, 3, st.EnrollmentsUpserted, "Maria keeps both enrollments")
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 0, st.Errors)

	run := runs.get(st.RunID)
	require.NotNil(t, run)
	assert.Equal(t, store.RunStatusDone, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, 2, run.CoursesUpserted)
	assert.Equal(t, 2, run.StudentsUpserted)
}

func TestOrchestrator_SecondRunIsIdempotent(t *testing.T) {
	src := new(mockSource)
	courses, students, enrollments, runs := newMemCourses(), newMemStudents(), newMemEnrollments(), newMemRuns()
	o := NewOrchestrator(src, courses, students, enrollments, runs, fastOpts(), nil)

	tn := testTenantFixture("polosul")
	src.On("FetchCatalog", mock.Anything, mock.Anything).Return(fixtureCatalog(), nil)
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, mock.Anything).Return([]moodle.EnrolledUser{
		{ID: 1, IDNumber: "031.839.245-36", FullName: "Maria da Silva"},
	}, nil)

	first := o.Run(context.Background(), []tenant.Tenant{tn})
	require.Equal(t, 2, first.Tenants[0].CoursesCreated)
	enrollmentsAfterFirst := enrollments.count()

	second := o.Run(context.Background(), []tenant.Tenant{tn})
	st := second.Tenants[0]
	assert.Zero(t, st.CoursesCreated, "second identical run must create nothing")
	assert.Equal(t, 2, st.CoursesUpdated)
	assert.Zero(t, st.StudentsCreated)
	assert.Equal(t, 1, st.StudentsUpdated)
	assert.Equal(t, enrollmentsAfterFirst, enrollments.count())
}

func TestOrchestrator_TenantFailureIsolation(t *testing.T) {
	src := new(mockSource)
	courses, students, enrollments, runs := newMemCourses(), newMemStudents(), newMemEnrollments(), newMemRuns()
	opts := fastOpts()
	opts.TenantWorkers = 1 // deterministic ordering
	o := NewOrchestrator(src, courses, students, enrollments, runs, opts, nil)

	t1 := testTenantFixture("polo1")
	t2 := testTenantFixture("polo2")
	t3 := testTenantFixture("polo3")

	matchTenant := func(sub string) interface{} {
		return mock.MatchedBy(func(t tenant.Tenant) bool { return t.Subdomain == sub })
	}
	src.On("FetchCatalog", mock.Anything, matchTenant("polo1")).Return(fixtureCatalog(), nil)
	src.On("FetchCatalog", mock.Anything, matchTenant("polo2")).Return(nil, &moodle.APIError{Code: "invalidtoken", Message: "Invalid token"})
	src.On("FetchCatalog", mock.Anything, matchTenant("polo3")).Return(fixtureCatalog(), nil)
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, mock.Anything).Return([]moodle.EnrolledUser{}, nil)

	summary := o.Run(context.Background(), []tenant.Tenant{t1, t2, t3})
	require.Len(t, summary.Tenants, 3)

	assert.Equal(t, StateDone, summary.Tenants[0].State)
	assert.Equal(t, StateAborted, summary.Tenants[1].State)
	assert.Contains(t, summary.Tenants[1].AbortReason, "invalidtoken")
	assert.Equal(t, StateDone, summary.Tenants[2].State)
	assert.Equal(t, 1, summary.AbortedCount())

	assert.Equal(t, store.RunStatusAborted, runs.get(summary.Tenants[1].RunID).Status)
	assert.Equal(t, store.RunStatusDone, runs.get(summary.Tenants[2].RunID).Status)

	// The rejection was not retried.
	src.AssertNumberOfCalls(t, "FetchCatalog", 3)
}

func TestOrchestrator_RetriesUnavailableThenSucceeds(t *testing.T) {
	src := new(mockSource)
	o := NewOrchestrator(src, newMemCourses(), newMemStudents(), newMemEnrollments(), newMemRuns(), fastOpts(), nil)

	tn := testTenantFixture("polonorte")
	src.On("FetchCatalog", mock.Anything, mock.Anything).
		Return(nil, &moodle.UnavailableError{Err: fmt.Errorf("connection refused")}).Once()
	src.On("FetchCatalog", mock.Anything, mock.Anything).
		Return(fixtureCatalog(), nil).Once()
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, mock.Anything).Return([]moodle.EnrolledUser{}, nil)

	summary := o.Run(context.Background(), []tenant.Tenant{tn})
	assert.Equal(t, StateDone, summary.Tenants[0].State)
	src.AssertNumberOfCalls(t, "FetchCatalog", 2)
}

func TestOrchestrator_UnavailableExhaustsRetriesAndAborts(t *testing.T) {
	src := new(mockSource)
	o := NewOrchestrator(src, newMemCourses(), newMemStudents(), newMemEnrollments(), newMemRuns(), fastOpts(), nil)

	tn := testTenantFixture("polonorte")
	src.On("FetchCatalog", mock.Anything, mock.Anything).
		Return(nil, &moodle.UnavailableError{Err: fmt.Errorf("timeout")})

	summary := o.Run(context.Background(), []tenant.Tenant{tn})
	assert.Equal(t, StateAborted, summary.Tenants[0].State)
	src.AssertNumberOfCalls(t, "FetchCatalog", 3)
}

func TestOrchestrator_CourseFetchFailureIsolation(t *testing.T) {
	src := new(mockSource)
	courses, students, enrollments, runs := newMemCourses(), newMemStudents(), newMemEnrollments(), newMemRuns()
	o := NewOrchestrator(src, courses, students, enrollments, runs, fastOpts(), nil)

	tn := testTenantFixture("polonorte")
	src.On("FetchCatalog", mock.Anything, mock.Anything).Return(fixtureCatalog(), nil)
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, int64(12)).
		Return(nil, &moodle.APIError{Code: "nopermission", Message: "no permission"})
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, int64(13)).Return([]moodle.EnrolledUser{
		{ID: 2, IDNumber: "520.117.330-05", FullName: "João Souza"},
	}, nil)

	summary := o.Run(context.Background(), []tenant.Tenant{tn})
	st := summary.Tenants[0]

	assert.Equal(t, StateDone, st.State, "one course's failure must not abort the tenant")
	assert.Equal(t, 1, st.Errors)
	assert.NotEmpty(t, st.ErrorSamples)
	assert.Equal(t, 1, st.StudentsCreated)
	assert.Equal(t, 1, st.EnrollmentsUpserted)
	assert.Equal(t, 2, st.CoursesCreated, "both courses are still upserted")
}

func TestOrchestrator_RecordLevelPersistenceFailureIsolation(t *testing.T) {
	src := new(mockSource)
	courses, students, enrollments, runs := newMemCourses(), newMemStudents(), newMemEnrollments(), newMemRuns()
	students.fail["03183924536"] = fmt.Errorf("unique constraint violation")
	o := NewOrchestrator(src, courses, students, enrollments, runs, fastOpts(), nil)

	tn := testTenantFixture("polonorte")
	src.On("FetchCatalog", mock.Anything, mock.Anything).Return(fixtureCatalog(), nil)
	src.On("GetEnrolledUsers", mock.Anything, mock.Anything, mock.Anything).Return([]moodle.EnrolledUser{
		{ID: 1, IDNumber: "031.839.245-36", FullName: "Maria da Silva"},
		{ID: 2, IDNumber: "520.117.330-05", FullName: "João Souza"},
	}, nil)

	summary := o.Run(context.Background(), []tenant.Tenant{tn})
	st := summary.Tenants[0]

	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, 1, st.StudentsCreated, "João still persists")
	assert.GreaterOrEqual(t, st.Errors, 1)
}

func TestOrchestrator_CancellationFinalizesPartialStats(t *testing.T) {
	src := new(mockSource)
	runs := newMemRuns()
	o := NewOrchestrator(src, newMemCourses(), newMemStudents(), newMemEnrollments(), runs, fastOpts(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tn := testTenantFixture("polonorte")
	src.On("FetchCatalog", mock.Anything, mock.Anything).Return(nil, ctx.Err()).Maybe()

	summary := o.Run(ctx, []tenant.Tenant{tn})
	require.Len(t, summary.Tenants, 1)
	st := summary.Tenants[0]
	require.NotNil(t, st)

	run := runs.get(st.RunID)
	require.NotNil(t, run, "the audit row must be finalized even when cancelled")
	assert.NotNil(t, run.FinishedAt)
}
