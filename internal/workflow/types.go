// Package workflow implements the approval-request state machine: stage and
// request status derivation, approve/reject transitions, the per-stage
// permission gate, and the merged history/comment timeline.
package workflow

import "time"

// Status is the overall state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// StageStatus is the derived state of a single approval stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageCurrent   StageStatus = "current"
	StageCompleted StageStatus = "completed"
	StageRejected  StageStatus = "rejected"
)

// ApproverStatus is the state of one approver within a stage. It is the only
// hand-set status in the model; stage and request statuses derive from it.
type ApproverStatus string

const (
	ApproverPending   ApproverStatus = "pending"
	ApproverCompleted ApproverStatus = "completed"
	ApproverRejected  ApproverStatus = "rejected"
)

// Action identifies a history event kind.
type Action string

const (
	ActionCreated         Action = "created"
	ActionUpdated         Action = "updated"
	ActionApproved        Action = "approved"
	ActionRejected        Action = "rejected"
	ActionApproverAdded   Action = "approver_added"
	ActionApproverRemoved Action = "approver_removed"
	ActionFileAttached    Action = "file_attached"
)

// Request is the aggregate root. Stages are ordered; stage i cannot start
// before stage i-1 completes. History and Comments are append-only.
type Request struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Kind          string         `json:"kind,omitempty"`
	RequesterID   string         `json:"requesterId"`
	RequesterName string         `json:"requesterName"`
	Status        Status         `json:"status"`
	Stages        []Stage        `json:"stages"`
	References    []Reference    `json:"references"`
	History       []HistoryEvent `json:"history"`
	Comments      []CommentEvent `json:"comments"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`

	// Version is the optimistic-concurrency counter maintained by the store.
	Version int64 `json:"-"`
}

// Stage is one sequential phase of a request. Approver order is display-only.
type Stage struct {
	ID            string      `json:"id"`
	SequenceIndex int         `json:"sequenceIndex"`
	Status        StageStatus `json:"status"`
	Approvers     []Approver  `json:"approvers"`
}

type Approver struct {
	UserID    string         `json:"userId"`
	Name      string         `json:"name"`
	Position  string         `json:"position,omitempty"`
	Status    ApproverStatus `json:"status"`
	DecidedAt *time.Time     `json:"decidedAt,omitempty"`
}

// Reference is a read-only observer; it carries no authorization weight.
type Reference struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
}

type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

type HistoryEvent struct {
	ID          string        `json:"id"`
	ActorUserID string        `json:"actorUserId"`
	Action      Action        `json:"action"`
	Timestamp   time.Time     `json:"timestamp"`
	Changes     []FieldChange `json:"changes,omitempty"`
}

type CommentEvent struct {
	ID          string    `json:"id"`
	ActorUserID string    `json:"actorUserId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// TimelineItem is an immutable snapshot of one history event or comment,
// tagged with its origin.
type TimelineItem struct {
	Origin      string        `json:"origin"` // "history" or "comment"
	ID          string        `json:"id"`
	ActorUserID string        `json:"actorUserId"`
	Timestamp   time.Time     `json:"timestamp"`
	Action      Action        `json:"action,omitempty"`
	Changes     []FieldChange `json:"changes,omitempty"`
	Content     string        `json:"content,omitempty"`
}

// Verdict is the permission gate's answer for a user and request.
type Verdict struct {
	StageID string `json:"stageId"`
	Allowed bool   `json:"allowed"`
}
