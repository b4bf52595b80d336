package moodle

// Category matches one element of core_course_get_categories.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Parent      int64  `json:"parent"`
	CourseCount int    `json:"coursecount"`
	Visible     int    `json:"visible"`
}

// Course matches one element of core_course_get_courses.
type Course struct {
	ID                int64  `json:"id"`
	FullName          string `json:"fullname"`
	ShortName         string `json:"shortname"`
	CategoryID        int64  `json:"categoryid"`
	Visible           int    `json:"visible"`
	Format            string `json:"format"`
	EnrolledUserCount int    `json:"enrolledusercount"`
}

// EnrolledUser matches one element of core_enrol_get_enrolled_users.
// IDNumber carries the institution's national-id field (CPF), which may be
// malformed or absent; validation happens downstream.
type EnrolledUser struct {
	ID       int64  `json:"id"`
	IDNumber string `json:"idnumber"`
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	City     string `json:"city"`
	Country  string `json:"country"`
}

// SiteInfo matches core_webservice_get_site_info and doubles as the
// connectivity-test result.
type SiteInfo struct {
	SiteName  string `json:"sitename"`
	SiteURL   string `json:"siteurl"`
	Release   string `json:"release"`
	UserName  string `json:"username"`
	UserID    int64  `json:"userid"`
	Functions []struct {
		Name string `json:"name"`
	} `json:"functions"`
}

// EntryKind tags a CatalogEntry with its origin in the remote catalog.
type EntryKind string

const (
	KindCourse   EntryKind = "course"
	KindCategory EntryKind = "category"
)

// CatalogEntry is the flattened union of categories and courses for one
// tenant, the unit the classifier works over. It lives only within one
// sync pass.
type CatalogEntry struct {
	ID       int64
	Name     string
	ParentID int64
	Enrolled int
	Visible  bool
	Kind     EntryKind
}
