package requests

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a media request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusFulfilled Status = "fulfilled"
)

// SystemActor is recorded as changed_by for transitions made by the service itself.
const SystemActor = "system"

var allStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusDenied,
	StatusFulfilled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status if recognized.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Open reports whether the request still awaits fulfillment.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusApproved
}

// MediaRef identifies a title in the external catalog.
type MediaRef struct {
	CatalogID int64  `json:"catalog_id"`
	MediaType string `json:"media_type"`
}

// Request is a user's ask for one media title.
type Request struct {
	ID            int64     `json:"id"`
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	Media         MediaRef  `json:"media"`
	Title         string    `json:"title"`
	PosterRef     string    `json:"poster_ref,omitempty"`
	Status        Status    `json:"status"`
	AdminNote     string    `json:"admin_note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// PreviousStatus is the status replaced by the Transition call that
	// returned this value. It is empty on values read from the store.
	PreviousStatus Status `json:"-"`
}

// NewRequest carries the caller-supplied fields for Create.
type NewRequest struct {
	RequesterID   string
	RequesterName string
	Media         MediaRef
	Title         string
	PosterRef     string
}

// HistoryEntry records one status change. OldStatus is empty for the entry
// written when the request was created.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	OldStatus Status    `json:"old_status,omitempty"`
	NewStatus Status    `json:"new_status"`
	ChangedBy string    `json:"changed_by"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List results. Zero values mean "no filter" and default paging.
type Filter struct {
	Status      Status
	RequesterID string
	Page        int
	PageSize    int
}

// Page is one page of requests, newest first.
type Page struct {
	Items      []*Request `json:"items"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"limit"`
	TotalPages int        `json:"total_pages"`
}

// Summary aggregates request counts.
type Summary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole converts a string into a Role if recognized.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// User is a row of the user_roles table. LibraryToken is the user's most
// recent library service token and never leaves the process in JSON.
type User struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	GrantedBy    string    `json:"granted_by,omitempty"`
	LibraryToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasLibraryToken reports whether the user can act as a library credential.
func (u User) HasLibraryToken() bool {
	return strings.TrimSpace(u.LibraryToken) != ""
}

// UserLink carries identity data recorded when a user authenticates.
type UserLink struct {
	UserID       string
	Username     string
	LibraryToken string
}
