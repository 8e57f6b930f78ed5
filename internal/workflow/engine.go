package workflow

import (
	"strings"
	"time"

	"orgflow/api/internal/util"
)

// The engine mutates a request snapshot in place and returns the history
// event it appended. Persisting the snapshot (under a version check) is the
// store's job; all functions here are synchronous computations with no I/O.

// Approve records a completed decision by userID on the current stage.
// Completing the last pending approver of a stage completes the stage; when
// the last stage completes the request becomes approved.
func Approve(r *Request, userID string, now time.Time) (*HistoryEvent, error) {
	idx, err := actableStage(r, userID)
	if err != nil {
		return nil, err
	}
	return decide(r, idx, userID, ApproverCompleted, now)
}

// Reject records a rejected decision by userID on the current stage. Any
// single rejection terminates the whole request; later stages stay pending
// and are never evaluated.
func Reject(r *Request, userID string, now time.Time) (*HistoryEvent, error) {
	idx, err := actableStage(r, userID)
	if err != nil {
		return nil, err
	}
	return decide(r, idx, userID, ApproverRejected, now)
}

// DecideStage is the stage-targeted variant for callers that name a stage
// explicitly instead of going through the gate. The named stage must be the
// computed current one.
func DecideStage(r *Request, stageID, userID string, approve bool, now time.Time) (*HistoryEvent, error) {
	if DeriveRequestStatus(r) != StatusPending {
		return nil, ErrRequestNotPending
	}
	idx := findStage(r, stageID)
	if idx < 0 || idx != CurrentStageIndex(r) {
		return nil, ErrStageNotCurrent
	}
	approver := findApprover(&r.Stages[idx], userID)
	if approver == nil {
		return nil, ErrApproverNotAuthorized
	}
	if approver.Status != ApproverPending {
		return nil, ErrAlreadyDecided
	}
	status := ApproverRejected
	if approve {
		status = ApproverCompleted
	}
	return decide(r, idx, userID, status, now)
}

func decide(r *Request, stageIdx int, userID string, status ApproverStatus, now time.Time) (*HistoryEvent, error) {
	approver := findApprover(&r.Stages[stageIdx], userID)
	decidedAt := now
	approver.Status = status
	approver.DecidedAt = &decidedAt
	Recompute(r)
	r.UpdatedAt = now

	action := ActionRejected
	if status == ApproverCompleted {
		action = ActionApproved
	}
	return appendHistory(r, userID, action, now, nil), nil
}

// NewComment validates and builds a comment event. Comments are allowed at
// any request status and are not gated: references may comment too, and the
// audit trail keeps growing after closure.
func NewComment(actorUserID, content string, now time.Time) (CommentEvent, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return CommentEvent{}, ErrEmptyComment
	}
	return CommentEvent{
		ID:          util.NewID("cmt"),
		ActorUserID: actorUserID,
		Content:     trimmed,
		Timestamp:   now,
	}, nil
}

// RecordUpdate appends an "updated" history event carrying a field diff of
// the request document content. Closed requests are immutable.
func RecordUpdate(r *Request, actorUserID string, changes []FieldChange, now time.Time) (*HistoryEvent, error) {
	if DeriveRequestStatus(r) != StatusPending {
		return nil, ErrRequestNotPending
	}
	r.UpdatedAt = now
	return appendHistory(r, actorUserID, ActionUpdated, now, changes), nil
}

// RecordAttachment appends a "file_attached" history event. Attachments may
// only be added while the request is pending.
func RecordAttachment(r *Request, actorUserID, filename string, now time.Time) (*HistoryEvent, error) {
	if DeriveRequestStatus(r) != StatusPending {
		return nil, ErrRequestNotPending
	}
	r.UpdatedAt = now
	changes := []FieldChange{{Field: "attachment", NewValue: filename}}
	return appendHistory(r, actorUserID, ActionFileAttached, now, changes), nil
}

// AddApprover inserts a pending approver into the named stage. The stage must
// not be completed; adding to a future stage is allowed.
func AddApprover(r *Request, stageID string, approver Approver, actorUserID string, now time.Time) (*HistoryEvent, error) {
	if DeriveRequestStatus(r) != StatusPending {
		return nil, ErrRequestNotPending
	}
	idx := findStage(r, stageID)
	if idx < 0 {
		return nil, ErrStageNotCurrent
	}
	stage := &r.Stages[idx]
	if stageAllCompleted(stage) {
		return nil, ErrStageClosed
	}
	if findApprover(stage, approver.UserID) != nil {
		return nil, ErrDuplicateApprover
	}
	approver.Status = ApproverPending
	approver.DecidedAt = nil
	stage.Approvers = append(stage.Approvers, approver)
	Recompute(r)
	r.UpdatedAt = now

	changes := []FieldChange{{Field: "approver", NewValue: approver.UserID}}
	return appendHistory(r, actorUserID, ActionApproverAdded, now, changes), nil
}

// RemoveApprover deletes a pending approver from the named stage. A stage
// keeps at least one approver and decided approvers are immutable. Removing
// the last pending approver of the current stage re-derives its status, which
// can complete the stage and advance or approve the request.
func RemoveApprover(r *Request, stageID, userID, actorUserID string, now time.Time) (*HistoryEvent, error) {
	if DeriveRequestStatus(r) != StatusPending {
		return nil, ErrRequestNotPending
	}
	idx := findStage(r, stageID)
	if idx < 0 {
		return nil, ErrStageNotCurrent
	}
	stage := &r.Stages[idx]
	approver := findApprover(stage, userID)
	if approver == nil {
		return nil, ErrApproverNotFound
	}
	if approver.Status != ApproverPending {
		return nil, ErrAlreadyDecided
	}
	if len(stage.Approvers) == 1 {
		return nil, ErrLastApprover
	}

	kept := make([]Approver, 0, len(stage.Approvers)-1)
	for i := range stage.Approvers {
		if stage.Approvers[i].UserID != userID {
			kept = append(kept, stage.Approvers[i])
		}
	}
	stage.Approvers = kept
	Recompute(r)
	r.UpdatedAt = now

	changes := []FieldChange{{Field: "approver", OldValue: userID}}
	return appendHistory(r, actorUserID, ActionApproverRemoved, now, changes), nil
}

func appendHistory(r *Request, actorUserID string, action Action, now time.Time, changes []FieldChange) *HistoryEvent {
	event := HistoryEvent{
		ID:          util.NewID("evt"),
		ActorUserID: actorUserID,
		Action:      action,
		Timestamp:   now,
		Changes:     changes,
	}
	r.History = append(r.History, event)
	return &r.History[len(r.History)-1]
}
