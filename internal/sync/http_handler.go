package sync

import (
	"net/http"

	"polosync/internal/httpx"
	"polosync/internal/tenant"
)

// HTTPHandler exposes the on-demand trigger: POST /internal/jobs/sync,
// guarded by a shared secret header. The optional ?tenant= parameter
// restricts the run to one polo.
type HTTPHandler struct {
	orch    *Orchestrator
	tenants []tenant.Tenant
	secret  string
}

func NewHTTPHandler(orch *Orchestrator, tenants []tenant.Tenant, secret string) *HTTPHandler {
	return &HTTPHandler{orch: orch, tenants: tenants, secret: secret}
}

// tenantSummary is the JSON shape of one tenant's result.
type tenantSummary struct {
	Tenant              string   `json:"tenant"`
	RunID               string   `json:"run_id"`
	State               string   `json:"state"`
	EntriesExamined     int      `json:"entries_examined"`
	CoursesCreated      int      `json:"courses_created"`
	CoursesUpdated      int      `json:"courses_updated"`
	StudentsCreated     int      `json:"students_created"`
	StudentsUpdated     int      `json:"students_updated"`
	EnrollmentsUpserted int      `json:"enrollments_upserted"`
	Skipped             int      `json:"skipped"`
	Errors              int      `json:"errors"`
	ErrorSamples        []string `json:"error_samples,omitempty"`
	DurationMS          int64    `json:"duration_ms"`
}

type runSummary struct {
	Aborted    int             `json:"aborted"`
	DurationMS int64           `json:"duration_ms"`
	Tenants    []tenantSummary `json:"tenants"`
}

func (h *HTTPHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get("X-Internal-Secret") != h.secret {
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid internal secret")
		return
	}

	targets, err := tenant.Select(h.tenants, r.URL.Query().Get("tenant"))
	if err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_TENANT", err.Error())
		return
	}

	summary := h.orch.Run(r.Context(), targets)

	out := runSummary{
		Aborted:    summary.AbortedCount(),
		DurationMS: summary.Duration.Milliseconds(),
	}
	for _, st := range summary.Tenants {
		if st == nil {
			continue
		}
		out.Tenants = append(out.Tenants, tenantSummary{
			Tenant:              st.Tenant,
			RunID:               st.RunID,
			State:               string(st.State),
			EntriesExamined:     st.EntriesExamined,
			CoursesCreated:      st.CoursesCreated,
			CoursesUpdated:      st.CoursesUpdated,
			StudentsCreated:     st.StudentsCreated,
			StudentsUpdated:     st.StudentsUpdated,
			EnrollmentsUpserted: st.EnrollmentsUpserted,
			Skipped:             st.Skipped,
			Errors:              st.Errors,
			ErrorSamples:        st.ErrorSamples,
			DurationMS:          st.Duration.Milliseconds(),
		})
	}
	httpx.JSONSuccess(w, r, out)
}
