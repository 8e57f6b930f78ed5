package workflow

// Approver statuses are the single source of truth. Everything in this file
// derives stage and request statuses from them; the stored Status fields on
// Stage and Request are caches refreshed by Recompute after every mutation.

func stageAllCompleted(stage *Stage) bool {
	for i := range stage.Approvers {
		if stage.Approvers[i].Status != ApproverCompleted {
			return false
		}
	}
	return len(stage.Approvers) > 0
}

func stageAnyRejected(stage *Stage) bool {
	for i := range stage.Approvers {
		if stage.Approvers[i].Status == ApproverRejected {
			return true
		}
	}
	return false
}

// DeriveRequestStatus computes the overall status from approver statuses
// alone: any rejection anywhere rejects the request; all stages completed
// approves it; otherwise it is pending.
func DeriveRequestStatus(r *Request) Status {
	allCompleted := true
	for i := range r.Stages {
		if stageAnyRejected(&r.Stages[i]) {
			return StatusRejected
		}
		if !stageAllCompleted(&r.Stages[i]) {
			allCompleted = false
		}
	}
	if allCompleted && len(r.Stages) > 0 {
		return StatusApproved
	}
	return StatusPending
}

// CurrentStageIndex returns the index of the single current stage: the
// lowest-index stage that is not completed, while the request is pending.
// It returns -1 when the request is terminal.
func CurrentStageIndex(r *Request) int {
	if DeriveRequestStatus(r) != StatusPending {
		return -1
	}
	for i := range r.Stages {
		if !stageAllCompleted(&r.Stages[i]) {
			return i
		}
	}
	return -1
}

// DeriveStageStatus computes the status of stage i without trusting any
// stored flag.
func DeriveStageStatus(r *Request, i int) StageStatus {
	if i < 0 || i >= len(r.Stages) {
		return StagePending
	}
	stage := &r.Stages[i]
	if stageAnyRejected(stage) {
		return StageRejected
	}
	if stageAllCompleted(stage) {
		return StageCompleted
	}
	if CurrentStageIndex(r) == i {
		return StageCurrent
	}
	return StagePending
}

// Recompute refreshes the cached Status fields on the request and all its
// stages from the underlying approver statuses.
func Recompute(r *Request) {
	for i := range r.Stages {
		r.Stages[i].Status = DeriveStageStatus(r, i)
	}
	r.Status = DeriveRequestStatus(r)
}
