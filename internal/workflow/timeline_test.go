package workflow

import (
	"reflect"
	"testing"
	"time"
)

func timelineFixture() *Request {
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)
	return &Request{
		ID: "req-1",
		History: []HistoryEvent{
			{ID: "evt-1", ActorUserID: "u-req", Action: ActionCreated, Timestamp: t1},
			{ID: "evt-2", ActorUserID: "A", Action: ActionApproved, Timestamp: t3},
		},
		Comments: []CommentEvent{
			{ID: "cmt-1", ActorUserID: "B", Content: "please review", Timestamp: t2},
		},
	}
}

func TestTimelineMergesChronologically(t *testing.T) {
	r := timelineFixture()
	items := BuildTimeline(r)

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	wantOrder := []string{"evt-1", "cmt-1", "evt-2"}
	for i, want := range wantOrder {
		if items[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, items[i].ID)
		}
	}
	if items[0].Origin != "history" || items[1].Origin != "comment" {
		t.Fatalf("unexpected origins %s, %s", items[0].Origin, items[1].Origin)
	}
	if items[1].Content != "please review" {
		t.Fatalf("expected comment content carried over, got %q", items[1].Content)
	}
}

func TestTimelineIsDeterministic(t *testing.T) {
	r := timelineFixture()
	first := BuildTimeline(r)
	second := BuildTimeline(r)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical output across repeated calls")
	}
}

func TestTimelineBreaksTiesByInsertionOrder(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := &Request{
		History: []HistoryEvent{
			{ID: "evt-1", Action: ActionCreated, Timestamp: at},
			{ID: "evt-2", Action: ActionApproved, Timestamp: at},
		},
		Comments: []CommentEvent{
			{ID: "cmt-1", Content: "same instant", Timestamp: at},
		},
	}

	items := BuildTimeline(r)
	wantOrder := []string{"evt-1", "evt-2", "cmt-1"}
	for i, want := range wantOrder {
		if items[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, items[i].ID)
		}
	}
}

func TestTimelineDoesNotMutateSources(t *testing.T) {
	r := timelineFixture()
	r.History[0].Changes = []FieldChange{{Field: "title", OldValue: "a", NewValue: "b"}}

	items := BuildTimeline(r)
	items[0].Changes[0].NewValue = "tampered"
	items[0].ID = "tampered"

	if r.History[0].Changes[0].NewValue != "b" {
		t.Fatal("expected source history changes untouched")
	}
	if r.History[0].ID != "evt-1" {
		t.Fatal("expected source history event untouched")
	}
}

func TestTimelineOfEmptyRequest(t *testing.T) {
	items := BuildTimeline(&Request{})
	if len(items) != 0 {
		t.Fatalf("expected empty timeline, got %d items", len(items))
	}
}
