package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Position              string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// RequestSummary is the listing row for an approval request. Stages,
// history and comments stay on the full aggregate.
type RequestSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Kind          string    `json:"kind"`
	RequesterID   string    `json:"requesterId"`
	RequesterName string    `json:"requesterName"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ListFilter narrows ListRequests. Zero values mean no constraint.
type ListFilter struct {
	Status      string
	Kind        string
	RequesterID string
	// ApproverID matches requests where the user sits in any stage.
	ApproverID string
	Limit      int
	Offset     int
}

type Attachment struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"requestId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	ObjectKey   string    `json:"-"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}
