package models

import "time"

// VideoStatus tracks a video through the server-side processing pipeline.
type VideoStatus string

const (
	StatusUploading  VideoStatus = "uploading"
	StatusProcessing VideoStatus = "processing"
	StatusCompleted  VideoStatus = "completed"
	StatusFailed     VideoStatus = "failed"
)

var statusRank = map[VideoStatus]int{
	StatusUploading:  0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// Terminal reports whether no further status transitions are possible.
func (s VideoStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Terminal statuses accept nothing new; equal statuses are allowed
// so repeated events carrying the same status are not treated as regressions.
func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	cur, ok := statusRank[s]
	if !ok {
		return true
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// SensitivityStatus is the outcome of the content-sensitivity analysis.
type SensitivityStatus string

const (
	SensitivityPending SensitivityStatus = "pending"
	SensitivitySafe    SensitivityStatus = "safe"
	SensitivityFlagged SensitivityStatus = "flagged"
)

// Resolved reports whether the analysis has produced its one-shot verdict.
func (s SensitivityStatus) Resolved() bool {
	return s == SensitivitySafe || s == SensitivityFlagged
}

// Role orders user capability: admin covers editor covers viewer.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 0,
	RoleEditor: 1,
	RoleAdmin:  2,
}

// AtLeast reports whether r grants everything other does.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// User is the identity record supplied by the session provider. It is
// referenced by videos, never owned by this module.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organizationId"`
}

// UserRef identifies a user inside a video's share list.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// VideoEntity is the canonical video record held by the store.
type VideoEntity struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	OwnerID         string    `json:"ownerId"`
	OrganizationID  string    `json:"organizationId"`
	MimeType        string    `json:"mimeType"`
	FileSizeBytes   int64     `json:"fileSizeBytes"`
	DurationSeconds float64   `json:"durationSeconds"`
	FilePath        string    `json:"filepath,omitempty"`
	UploadedAt      time.Time `json:"uploadedAt"`

	Status             VideoStatus       `json:"status"`
	ProcessingProgress float64           `json:"processingProgress"`
	SensitivityStatus  SensitivityStatus `json:"sensitivityStatus"`
	SensitivityScore   float64           `json:"sensitivityScore"`
	SensitivityDetails string            `json:"sensitivityDetails,omitempty"`

	IsPublic   bool      `json:"isPublic"`
	SharedWith []UserRef `json:"sharedWith,omitempty"`
}

// SharedWithUser reports whether the video carries an explicit grant for userID.
func (v VideoEntity) SharedWithUser(userID string) bool {
	for _, ref := range v.SharedWith {
		if ref.ID == userID {
			return true
		}
	}
	return false
}

// ProgressEvent is a transient pipeline update pushed over the live channel.
// It is applied to the store and a side display map, never persisted.
type ProgressEvent struct {
	VideoID           string            `json:"videoId"`
	Progress          float64           `json:"progress"`
	Status            VideoStatus       `json:"status"`
	SensitivityStatus SensitivityStatus `json:"sensitivityStatus,omitempty"`
	Message           string            `json:"message,omitempty"`
}
