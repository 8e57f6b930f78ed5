package docrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestRequestRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Content{
		Title:         "Remote work arrangement",
		Summary:       "Work from home two days a week",
		Body:          "Requesting a recurring remote schedule.",
		Justification: "Long commute",
	}

	if err := svc.EnsureRequestRepo("req-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureRequestRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "req-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// re-ensure is a no-op
	if err := svc.EnsureRequestRepo("req-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureRequestRepo() second call error = %v", err)
	}

	updated := initial
	updated.Body = "Requesting a recurring remote schedule, revised."
	commit, err := svc.CommitContent("req-1", updated, "Avery", "Revise body")
	if err != nil {
		t.Fatalf("CommitContent() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("req-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}

	changed, err := svc.GetContentByHash("req-1", commit.Hash)
	if err != nil {
		t.Fatalf("GetContentByHash() error = %v", err)
	}
	if changed.Body != updated.Body {
		t.Fatalf("unexpected content: %+v", changed)
	}

	head, headCommit, err := svc.GetHeadContent("req-1")
	if err != nil {
		t.Fatalf("GetHeadContent() error = %v", err)
	}
	if head != updated {
		t.Fatalf("head content mismatch: %+v", head)
	}
	if headCommit.Hash != commit.Hash {
		t.Fatalf("head commit mismatch: %s vs %s", headCommit.Hash, commit.Hash)
	}
}

func TestDiffFields(t *testing.T) {
	from := Content{Title: "A", Summary: "S", Body: "B", Justification: "J"}
	to := from
	to.Body = "B2"
	to.Justification = "J2"

	changes := DiffFields(from, to)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].Field != "body" || changes[0].OldValue != "B" || changes[0].NewValue != "B2" {
		t.Fatalf("unexpected first change: %+v", changes[0])
	}
	if changes[1].Field != "justification" {
		t.Fatalf("unexpected second change: %+v", changes[1])
	}

	if len(DiffFields(from, from)) != 0 {
		t.Fatal("identical content should produce no changes")
	}
	if HasChanges(from, from) {
		t.Fatal("identical content should report no changes")
	}
	if !HasChanges(from, to) {
		t.Fatal("differing content should report changes")
	}
}

func TestConcurrentCommitContent(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Content{
		Title:   "Request",
		Summary: "Summary",
		Body:    "Body",
	}

	if err := svc.EnsureRequestRepo("req-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureRequestRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := initial
			next.Body = fmt.Sprintf("body-%02d", idx)
			if _, err := svc.CommitContent("req-1", next, "Avery", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitContent() concurrent error = %v", err)
		}
	}

	history, err := svc.History("req-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < writers+1 {
		t.Fatalf("expected at least %d commits in history, got %d", writers+1, len(history))
	}

	head, _, err := svc.GetHeadContent("req-1")
	if err != nil {
		t.Fatalf("GetHeadContent() error = %v", err)
	}
	if !strings.HasPrefix(head.Body, "body-") {
		t.Fatalf("unexpected head content after concurrent commits: %+v", head)
	}
}
