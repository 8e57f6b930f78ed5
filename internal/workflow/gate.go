package workflow

// CanAct reports whether userID may approve or reject the request right now:
// the request must be pending and the user must be a pending approver of the
// current stage. A user listed in a future stage is never permitted to act
// early, and a user appearing in several stages is gated per stage.
func CanAct(r *Request, userID string) Verdict {
	idx, err := actableStage(r, userID)
	if err != nil {
		verdict := Verdict{}
		if cur := CurrentStageIndex(r); cur >= 0 {
			verdict.StageID = r.Stages[cur].ID
		}
		return verdict
	}
	return Verdict{StageID: r.Stages[idx].ID, Allowed: true}
}

// actableStage returns the index of the stage userID may act on, or one of
// the taxonomy errors explaining the denial.
func actableStage(r *Request, userID string) (int, error) {
	if DeriveRequestStatus(r) != StatusPending {
		return -1, ErrRequestNotPending
	}
	cur := CurrentStageIndex(r)
	if cur < 0 {
		return -1, ErrRequestNotPending
	}
	approver := findApprover(&r.Stages[cur], userID)
	if approver == nil {
		return -1, ErrApproverNotAuthorized
	}
	if approver.Status != ApproverPending {
		return -1, ErrAlreadyDecided
	}
	return cur, nil
}

func findApprover(stage *Stage, userID string) *Approver {
	for i := range stage.Approvers {
		if stage.Approvers[i].UserID == userID {
			return &stage.Approvers[i]
		}
	}
	return nil
}

func findStage(r *Request, stageID string) int {
	for i := range r.Stages {
		if r.Stages[i].ID == stageID {
			return i
		}
	}
	return -1
}
