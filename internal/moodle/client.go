// Package moodle is a typed client for the Moodle web-service REST protocol
// (wstoken + wsfunction + moodlewsrestformat=json).
package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"polosync/internal/tenant"
)

// Web-service functions the engine knows how to call. Each call is still
// gated by the tenant's own allowlist.
const (
	FnGetSiteInfo      = "core_webservice_get_site_info"
	FnGetCategories    = "core_course_get_categories"
	FnGetCourses       = "core_course_get_courses"
	FnGetEnrolledUsers = "core_enrol_get_enrolled_users"
)

const restPath = "/webservice/rest/server.php"

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client with a hard per-request timeout and a shared
// rate limiter so concurrent workers do not hammer the remote host.
func NewClient(timeout time.Duration, rps int) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), rps),
	}
}

// TestConnection verifies the tenant's token and base URL by asking the
// remote site for its own description.
func (c *Client) TestConnection(ctx context.Context, t tenant.Tenant) (SiteInfo, error) {
	var info SiteInfo
	if err := c.call(ctx, t, FnGetSiteInfo, nil, &info); err != nil {
		return SiteInfo{}, err
	}
	return info, nil
}

// GetCategories fetches the full category tree, flat.
func (c *Client) GetCategories(ctx context.Context, t tenant.Tenant) ([]Category, error) {
	var cats []Category
	if err := c.call(ctx, t, FnGetCategories, nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// GetCourses fetches every course visible to the token.
func (c *Client) GetCourses(ctx context.Context, t tenant.Tenant) ([]Course, error) {
	var courses []Course
	if err := c.call(ctx, t, FnGetCourses, nil, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// GetEnrolledUsers fetches the users enrolled in one remote course.
func (c *Client) GetEnrolledUsers(ctx context.Context, t tenant.Tenant, courseID int64) ([]EnrolledUser, error) {
	params := url.Values{}
	params.Set("courseid", strconv.FormatInt(courseID, 10))

	var users []EnrolledUser
	if err := c.call(ctx, t, FnGetEnrolledUsers, params, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FetchCatalog merges categories and courses into the flat catalog the
// classifier consumes. Courses fetched through the site-level function
// include the front-page "site" course (id 1, format "site"); it is kept
// here and filtered by the classifier.
func (c *Client) FetchCatalog(ctx context.Context, t tenant.Tenant) ([]CatalogEntry, error) {
	cats, err := c.GetCategories(ctx, t)
	if err != nil {
		return nil, err
	}
	courses, err := c.GetCourses(ctx, t)
	if err != nil {
		return nil, err
	}

	entries := make([]CatalogEntry, 0, len(cats)+len(courses))
	for _, cat := range cats {
		entries = append(entries, CatalogEntry{
			ID:       cat.ID,
			Name:     cat.Name,
			ParentID: cat.Parent,
			Enrolled: 0,
			Visible:  cat.Visible != 0,
			Kind:     KindCategory,
		})
	}
	for _, course := range courses {
		entries = append(entries, CatalogEntry{
			ID:       course.ID,
			Name:     course.FullName,
			ParentID: course.CategoryID,
			Enrolled: course.EnrolledUserCount,
			Visible:  course.Visible != 0,
			Kind:     KindCourse,
		})
	}
	return entries, nil
}

// errEnvelope is how Moodle reports failure: a JSON object with errorcode
// and message, regardless of HTTP status.
type errEnvelope struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call performs a single web-service request. It enforces the tenant
// allowlist before touching the network and never retries; retry policy
// belongs to the orchestrator.
func (c *Client) call(ctx context.Context, t tenant.Tenant, wsfunction string, params url.Values, target any) error {
	if !t.AllowsFunction(wsfunction) {
		return fmt.Errorf("%w: %s (tenant %s)", ErrFunctionNotAllowed, wsfunction, t.Subdomain)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("wstoken", t.Token)
	q.Set("wsfunction", wsfunction)
	q.Set("moodlewsrestformat", "json")
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}

	reqURL := t.BaseURL + restPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &UnavailableError{Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, wsfunction)}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Code: "http_" + strconv.Itoa(resp.StatusCode), Message: fmt.Sprintf("unexpected HTTP %d from %s", resp.StatusCode, wsfunction)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnavailableError{Err: err}
	}

	// Moodle signals errors in the body, not the status line. A successful
	// response for these functions is a JSON array or a plain object
	// without an errorcode.
	var env errEnvelope
	if json.Unmarshal(body, &env) == nil && env.ErrorCode != "" {
		return &APIError{Code: env.ErrorCode, Message: env.Message}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("moodle: decode %s response: %w", wsfunction, err)
	}
	return nil
}
