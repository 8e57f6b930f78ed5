package export

import (
	"context"
	"fmt"

	"orgflow/api/internal/docrepo"
	"orgflow/api/internal/workflow"
)

// RequestStore loads the approval request aggregate.
type RequestStore interface {
	GetRequest(ctx context.Context, requestID string) (*workflow.Request, error)
}

// ContentStore loads the request body content.
type ContentStore interface {
	GetHeadContent(requestID string) (docrepo.Content, docrepo.CommitInfo, error)
}

// Service provides request export functionality
type Service struct {
	store   RequestStore
	content ContentStore
}

// NewService creates a new export service. content may be nil when body
// content is not stored for this deployment.
func NewService(store RequestStore, content ContentStore) *Service {
	return &Service{store: store, content: content}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	r, err := s.store.GetRequest(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	data := buildTemplateData(r)

	if s.content != nil {
		content, _, err := s.content.GetHeadContent(r.ID)
		if err == nil {
			data.Summary = content.Summary
			data.Body = content.Body
			data.Justification = content.Justification
		}
	}

	html, err := RenderRequestHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(r.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, r.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func buildTemplateData(r *workflow.Request) TemplateData {
	data := TemplateData{
		Title:         r.Title,
		Kind:          r.Kind,
		Status:        string(r.Status),
		RequesterName: r.RequesterName,
		CreatedAt:     r.CreatedAt,
	}

	for i, stage := range r.Stages {
		ts := TemplateStage{
			Number: i + 1,
			Status: string(stage.Status),
		}
		for _, approver := range stage.Approvers {
			ta := TemplateApprover{
				Name:     approver.Name,
				Position: approver.Position,
				Status:   string(approver.Status),
			}
			if approver.DecidedAt != nil {
				ta.DecidedAt = approver.DecidedAt.Format("Jan 2, 2006 15:04")
			}
			ts.Approvers = append(ts.Approvers, ta)
		}
		data.Stages = append(data.Stages, ts)
	}

	for _, ref := range r.References {
		data.References = append(data.References, TemplateReference{
			Name:     ref.Name,
			Position: ref.Position,
		})
	}

	for _, item := range workflow.BuildTimeline(r) {
		entry := TemplateTimelineItem{
			When:  item.Timestamp.Format("Jan 2, 2006 15:04"),
			Actor: item.ActorUserID,
		}
		if item.Origin == "comment" {
			entry.Label = "commented"
			entry.Content = item.Content
		} else {
			entry.Label = actionLabel(item.Action)
		}
		data.Timeline = append(data.Timeline, entry)
	}

	return data
}

func actionLabel(action workflow.Action) string {
	switch action {
	case workflow.ActionCreated:
		return "submitted the request"
	case workflow.ActionUpdated:
		return "updated the request"
	case workflow.ActionApproved:
		return "approved"
	case workflow.ActionRejected:
		return "rejected"
	case workflow.ActionApproverAdded:
		return "added an approver"
	case workflow.ActionApproverRemoved:
		return "removed an approver"
	case workflow.ActionFileAttached:
		return "attached a file"
	default:
		return string(action)
	}
}
