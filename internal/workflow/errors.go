package workflow

import "errors"

var (
	// ErrRequestNotPending is returned for any mutating action on a request
	// that already reached approved or rejected.
	ErrRequestNotPending = errors.New("request is not pending")

	// ErrStageNotCurrent is returned when an action targets a stage other
	// than the computed current one.
	ErrStageNotCurrent = errors.New("stage is not current")

	// ErrApproverNotAuthorized is returned when the acting user is not a
	// pending approver of the current stage.
	ErrApproverNotAuthorized = errors.New("user is not a pending approver of the current stage")

	// ErrAlreadyDecided is the idempotency guard: the approver has already
	// recorded a decision and may not vote again.
	ErrAlreadyDecided = errors.New("approver already decided")

	// ErrEmptyComment is returned when comment content is blank after trimming.
	ErrEmptyComment = errors.New("comment content is empty")

	// ErrStageClosed is returned when an approver-line edit targets a stage
	// that already completed.
	ErrStageClosed = errors.New("stage already completed")

	// ErrApproverNotFound is returned when an approver-line edit names a user
	// not present in the target stage.
	ErrApproverNotFound = errors.New("approver not found in stage")

	// ErrDuplicateApprover is returned when adding a user who is already an
	// approver of the target stage.
	ErrDuplicateApprover = errors.New("user is already an approver of this stage")

	// ErrLastApprover is returned when removing the only approver of a stage;
	// every stage keeps at least one approver.
	ErrLastApprover = errors.New("stage must keep at least one approver")
)
