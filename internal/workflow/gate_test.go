package workflow

import (
	"errors"
	"testing"
	"time"
)

func TestGateAllowsPendingApproverOfCurrentStage(t *testing.T) {
	r := testRequest([]string{"A", "B"}, []string{"C"})

	verdict := CanAct(r, "A")
	if !verdict.Allowed {
		t.Fatal("expected A allowed on current stage")
	}
	if verdict.StageID != r.Stages[0].ID {
		t.Fatalf("expected stage %s, got %s", r.Stages[0].ID, verdict.StageID)
	}
}

func TestGateDeniesFutureStageApprover(t *testing.T) {
	r := testRequest([]string{"A"}, []string{"C"})

	if verdict := CanAct(r, "C"); verdict.Allowed {
		t.Fatal("expected C denied while stage 1 is current")
	}
	if _, err := Approve(r, "C", time.Now()); !errors.Is(err, ErrApproverNotAuthorized) {
		t.Fatalf("expected ErrApproverNotAuthorized for eager future approver, got %v", err)
	}
}

func TestGateDeniesOnTerminalRequest(t *testing.T) {
	r := testRequest([]string{"A"})
	mustApprove(t, r, "A", time.Now())

	if verdict := CanAct(r, "A"); verdict.Allowed {
		t.Fatal("expected denial on approved request")
	}
	if verdict := CanAct(r, "A"); verdict.StageID != "" {
		t.Fatalf("expected no stage on terminal request, got %s", verdict.StageID)
	}
}

func TestGateDeniesDecidedApprover(t *testing.T) {
	r := testRequest([]string{"A", "B"})
	mustApprove(t, r, "A", time.Now())

	if verdict := CanAct(r, "A"); verdict.Allowed {
		t.Fatal("expected A denied after deciding")
	}
	if verdict := CanAct(r, "B"); !verdict.Allowed {
		t.Fatal("expected B still allowed")
	}
}

// A user appearing in several stages is gated independently per stage: a
// decision in stage 1 leaves their stage-3 entry pending and actionable once
// stage 3 becomes current.
func TestGateTreatsStagesIndependentlyForSameUser(t *testing.T) {
	r := testRequest([]string{"A"}, []string{"B"}, []string{"A"})
	now := time.Now()

	mustApprove(t, r, "A", now)
	if verdict := CanAct(r, "A"); verdict.Allowed {
		t.Fatal("expected A denied while stage 2 is current")
	}

	mustApprove(t, r, "B", now)
	verdict := CanAct(r, "A")
	if !verdict.Allowed {
		t.Fatal("expected A allowed again once stage 3 is current")
	}
	if verdict.StageID != r.Stages[2].ID {
		t.Fatalf("expected stage 3, got %s", verdict.StageID)
	}

	mustApprove(t, r, "A", now)
	if r.Status != StatusApproved {
		t.Fatalf("expected request approved, got %s", r.Status)
	}
}

func TestGateIsSideEffectFree(t *testing.T) {
	r := testRequest([]string{"A", "B"})
	before := len(r.History)

	CanAct(r, "A")
	CanAct(r, "Z")

	if len(r.History) != before {
		t.Fatalf("expected gate to append no history, got %d events", len(r.History))
	}
	for _, approver := range r.Stages[0].Approvers {
		if approver.Status != ApproverPending {
			t.Fatalf("expected approver statuses untouched, got %s", approver.Status)
		}
	}
}

func TestReferencesHaveNoApprovalRights(t *testing.T) {
	r := testRequest([]string{"A"})
	r.References = append(r.References, Reference{UserID: "R", Name: "Robin"})

	if verdict := CanAct(r, "R"); verdict.Allowed {
		t.Fatal("expected reference denied")
	}
	if _, err := Approve(r, "R", time.Now()); !errors.Is(err, ErrApproverNotAuthorized) {
		t.Fatalf("expected ErrApproverNotAuthorized for reference, got %v", err)
	}
}
