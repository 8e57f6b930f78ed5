package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"orgflow/api/internal/workflow"
)

func sampleRequest() *workflow.Request {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	decided := now.Add(time.Hour)
	r := &workflow.Request{
		ID:            "req_1",
		Title:         "Remote work arrangement",
		Kind:          "general",
		RequesterID:   "usr_req",
		RequesterName: "Dana",
		Status:        workflow.StatusPending,
		Stages: []workflow.Stage{
			{
				ID:            "stg_1",
				SequenceIndex: 0,
				Approvers: []workflow.Approver{
					{UserID: "usr_a", Name: "Alice", Position: "Team Lead", Status: workflow.ApproverCompleted, DecidedAt: &decided},
				},
			},
			{
				ID:            "stg_2",
				SequenceIndex: 1,
				Approvers: []workflow.Approver{
					{UserID: "usr_b", Name: "Bob", Position: "HR", Status: workflow.ApproverPending},
				},
			},
		},
		References: []workflow.Reference{
			{UserID: "usr_c", Name: "Carol", Position: "Office Manager"},
		},
		History: []workflow.HistoryEvent{
			{ID: "evt_1", ActorUserID: "usr_req", Action: workflow.ActionCreated, Timestamp: now},
			{ID: "evt_2", ActorUserID: "usr_a", Action: workflow.ActionApproved, Timestamp: decided},
		},
		Comments: []workflow.CommentEvent{
			{ID: "cmt_1", ActorUserID: "usr_c", Content: "looks reasonable", Timestamp: now.Add(30 * time.Minute)},
		},
		CreatedAt: now,
		UpdatedAt: decided,
	}
	workflow.Recompute(r)
	return r
}

func TestRenderRequestHTML(t *testing.T) {
	data := buildTemplateData(sampleRequest())
	data.Summary = "Work from home two days a week"
	data.Body = "Requesting a recurring remote schedule."

	html, err := RenderRequestHTML(data)
	if err != nil {
		t.Fatalf("RenderRequestHTML failed: %v", err)
	}

	for _, want := range []string{
		"Remote work arrangement",
		"Dana",
		"Alice",
		"Team Lead",
		"Stage 1",
		"Stage 2",
		"Carol",
		"Work from home two days a week",
		"looks reasonable",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestBuildTemplateDataTimelineOrder(t *testing.T) {
	data := buildTemplateData(sampleRequest())

	if len(data.Timeline) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(data.Timeline))
	}
	if data.Timeline[0].Label != "submitted the request" {
		t.Errorf("unexpected first entry: %+v", data.Timeline[0])
	}
	if data.Timeline[1].Label != "commented" || data.Timeline[1].Content != "looks reasonable" {
		t.Errorf("unexpected second entry: %+v", data.Timeline[1])
	}
	if data.Timeline[2].Label != "approved" {
		t.Errorf("unexpected third entry: %+v", data.Timeline[2])
	}
}

type fakeRequestStore struct {
	r *workflow.Request
}

func (f *fakeRequestStore) GetRequest(ctx context.Context, requestID string) (*workflow.Request, error) {
	return f.r, nil
}

func TestExportHTML(t *testing.T) {
	svc := NewService(&fakeRequestStore{r: sampleRequest()}, nil)

	result, err := svc.Export(context.Background(), Request{
		RequestID: "req_1",
		Format:    FormatHTML,
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Errorf("unexpected mime type: %s", result.MimeType)
	}
	if result.Filename != "Remote-work-arrangement.html" {
		t.Errorf("unexpected filename: %s", result.Filename)
	}
	if !strings.Contains(string(result.Data), "Remote work arrangement") {
		t.Error("exported HTML missing title")
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewService(&fakeRequestStore{r: sampleRequest()}, nil)

	if _, err := svc.Export(context.Background(), Request{
		RequestID: "req_1",
		Format:    Format("docx"),
	}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Remote work arrangement": "Remote-work-arrangement",
		"a/b\\c":                  "abc",
		"":                        "request",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
