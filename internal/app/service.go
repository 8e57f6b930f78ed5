package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"orgflow/api/internal/attach"
	"orgflow/api/internal/auth"
	"orgflow/api/internal/authpw"
	"orgflow/api/internal/config"
	"orgflow/api/internal/docrepo"
	"orgflow/api/internal/email"
	"orgflow/api/internal/export"
	"orgflow/api/internal/rbac"
	"orgflow/api/internal/search"
	"orgflow/api/internal/store"
	"orgflow/api/internal/util"
	"orgflow/api/internal/workflow"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	Position     string
	JTI          string
	ExpiresAt    time.Time
}

type StageInput struct {
	Approvers []string `json:"approvers"`
}

type CreateRequestInput struct {
	Title         string       `json:"title"`
	Kind          string       `json:"kind"`
	Summary       string       `json:"summary"`
	Body          string       `json:"body"`
	Justification string       `json:"justification"`
	Stages        []StageInput `json:"stages"`
	References    []string     `json:"references"`
}

type UpdateContentInput struct {
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Body          string `json:"body"`
	Justification string `json:"justification"`
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	CreateRequest(context.Context, *workflow.Request) error
	SaveRequest(context.Context, *workflow.Request, int64, []workflow.HistoryEvent) error
	GetRequest(context.Context, string) (*workflow.Request, error)
	ListRequests(context.Context, store.ListFilter) ([]store.RequestSummary, error)
	InsertComment(context.Context, string, workflow.CommentEvent) error
	InsertAttachment(context.Context, store.Attachment) error
	GetAttachment(context.Context, string, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	Ping(ctx context.Context) error
}

// SessionStore holds refresh sessions. Redis when configured, Postgres otherwise.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type docStore interface {
	EnsureRequestRepo(requestID string, initial docrepo.Content, author string) error
	CommitContent(requestID string, content docrepo.Content, author, message string) (docrepo.CommitInfo, error)
	GetHeadContent(requestID string) (docrepo.Content, docrepo.CommitInfo, error)
	GetContentByHash(requestID, hash string) (docrepo.Content, error)
	History(requestID string, limit int) ([]docrepo.CommitInfo, error)
}

type blobStore interface {
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectKey string) (io.ReadCloser, error)
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendDecisionNeededEmail(to, approverName, requestTitle, requesterName, requestURL string) error
	SendDecisionMadeEmail(to, userName, requestTitle, outcome, deciderName, requestURL string) error
	SendCommentEmail(to, userName, requestTitle, commenterName, requestURL string) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// casRetries bounds how many times a decision is re-applied after losing a
// version race to a concurrent writer.
const casRetries = 3

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	docs     docStore
	search   *search.Service
	exporter exporter
	mail     mailer
	blobs    blobStore
	auth     *authpw.Service
	now      func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, docs *docrepo.Service, searchSvc *search.Service, exportSvc *export.Service, mail *email.Service, blobs *attach.Service) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		docs:     docs,
		search:   searchSvc,
		auth:     authpw.NewService(dataStore),
		now:      time.Now,
	}
	if exportSvc != nil {
		s.exporter = exportSvc
	}
	if mail != nil {
		s.mail = mail
	}
	if blobs != nil {
		s.blobs = blobs
	}
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.auth
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	known, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, known.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("tok") + util.ShortID()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		Position:     user.Position,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		Position:  user.Position,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) CreateRequest(ctx context.Context, session Session, input CreateRequestInput) (*workflow.Request, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if len(input.Stages) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one approval stage is required", nil)
	}

	now := s.now()
	r := &workflow.Request{
		ID:            util.NewID("req"),
		Title:         title,
		Kind:          strings.TrimSpace(input.Kind),
		RequesterID:   session.UserID,
		RequesterName: session.UserName,
		Status:        workflow.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for i, stageInput := range input.Stages {
		if len(stageInput.Approvers) == 0 {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "every stage needs at least one approver", map[string]any{"stage": i})
		}
		stage := workflow.Stage{
			ID:            util.NewID("stg"),
			SequenceIndex: i,
		}
		seen := make(map[string]bool, len(stageInput.Approvers))
		for _, userID := range stageInput.Approvers {
			if seen[userID] {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "duplicate approver in stage", map[string]any{"userId": userID, "stage": i})
			}
			seen[userID] = true
			user, err := s.store.GetUserByID(ctx, userID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown approver", map[string]any{"userId": userID})
				}
				return nil, err
			}
			stage.Approvers = append(stage.Approvers, workflow.Approver{
				UserID:   user.ID,
				Name:     user.DisplayName,
				Position: user.Position,
				Status:   workflow.ApproverPending,
			})
		}
		r.Stages = append(r.Stages, stage)
	}

	for _, userID := range input.References {
		user, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown reference", map[string]any{"userId": userID})
			}
			return nil, err
		}
		r.References = append(r.References, workflow.Reference{
			UserID:   user.ID,
			Name:     user.DisplayName,
			Position: user.Position,
		})
	}

	r.History = append(r.History, workflow.HistoryEvent{
		ID:          util.NewID("evt"),
		ActorUserID: session.UserID,
		Action:      workflow.ActionCreated,
		Timestamp:   now,
	})
	workflow.Recompute(r)

	if err := s.store.CreateRequest(ctx, r); err != nil {
		return nil, err
	}

	if err := s.docs.EnsureRequestRepo(r.ID, docrepo.Content{
		Title:         title,
		Summary:       input.Summary,
		Body:          input.Body,
		Justification: input.Justification,
	}, session.UserName); err != nil {
		return nil, err
	}

	s.reindex(r, input.Summary)
	s.notifyStageApprovers(r, workflow.CurrentStageIndex(r))
	return r, nil
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (*workflow.Request, error) {
	return s.store.GetRequest(ctx, requestID)
}

// RequestDetail assembles the full view of one request: the aggregate, the
// head revision of its content, and the caller's permission verdict.
func (s *Service) RequestDetail(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	detail := map[string]any{
		"request": r,
		"verdict": workflow.CanAct(r, session.UserID),
	}
	if content, head, err := s.docs.GetHeadContent(r.ID); err == nil {
		detail["content"] = content
		detail["contentRevision"] = head
	}
	return detail, nil
}

func (s *Service) ListRequests(ctx context.Context, filter store.ListFilter) ([]store.RequestSummary, error) {
	return s.store.ListRequests(ctx, filter)
}

func (s *Service) Approve(ctx context.Context, session Session, requestID string) (*workflow.Request, error) {
	return s.decide(ctx, session, requestID, "", true)
}

func (s *Service) Reject(ctx context.Context, session Session, requestID string) (*workflow.Request, error) {
	return s.decide(ctx, session, requestID, "", false)
}

func (s *Service) DecideStage(ctx context.Context, session Session, requestID, stageID string, approve bool) (*workflow.Request, error) {
	return s.decide(ctx, session, requestID, stageID, approve)
}

func (s *Service) decide(ctx context.Context, session Session, requestID, stageID string, approve bool) (*workflow.Request, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		r, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		beforeStage := workflow.CurrentStageIndex(r)

		now := s.now()
		var event *workflow.HistoryEvent
		switch {
		case stageID != "":
			event, err = workflow.DecideStage(r, stageID, session.UserID, approve, now)
		case approve:
			event, err = workflow.Approve(r, session.UserID, now)
		default:
			event, err = workflow.Reject(r, session.UserID, now)
		}
		if err != nil {
			return nil, err
		}

		if err := s.store.SaveRequest(ctx, r, r.Version, []workflow.HistoryEvent{*event}); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}

		s.reindex(r, "")
		if r.Status != workflow.StatusPending {
			s.notifyDecisionMade(r, session.UserName)
		} else if afterStage := workflow.CurrentStageIndex(r); afterStage != beforeStage {
			s.notifyStageApprovers(r, afterStage)
		}
		return r, nil
	}
	return nil, domainError(http.StatusConflict, "CONFLICT", "Request was modified concurrently, please retry", nil)
}

func (s *Service) Verdict(ctx context.Context, session Session, requestID string) (workflow.Verdict, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return workflow.Verdict{}, err
	}
	return workflow.CanAct(r, session.UserID), nil
}

func (s *Service) Timeline(ctx context.Context, requestID string) ([]workflow.TimelineItem, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return workflow.BuildTimeline(r), nil
}

// AddComment appends a comment. Comments never touch derived state, so they
// skip the version check and remain possible on closed requests.
func (s *Service) AddComment(ctx context.Context, session Session, requestID, content string) (workflow.CommentEvent, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return workflow.CommentEvent{}, err
	}
	comment, err := workflow.NewComment(session.UserID, content, s.now())
	if err != nil {
		return workflow.CommentEvent{}, err
	}
	if err := s.store.InsertComment(ctx, requestID, comment); err != nil {
		return workflow.CommentEvent{}, err
	}
	s.notifyNewComment(r, session.UserID, session.UserName)
	return comment, nil
}

func (s *Service) UpdateContent(ctx context.Context, session Session, requestID string, input UpdateContentInput) (*workflow.Request, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != workflow.StatusPending {
		return nil, workflow.ErrRequestNotPending
	}
	if session.UserID != r.RequesterID && !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the requester can edit the request", nil)
	}

	current, _, err := s.docs.GetHeadContent(requestID)
	if err != nil {
		return nil, err
	}
	next := docrepo.Content{
		Title:         strings.TrimSpace(input.Title),
		Summary:       input.Summary,
		Body:          input.Body,
		Justification: input.Justification,
	}
	if next.Title == "" {
		next.Title = current.Title
	}
	if !docrepo.HasChanges(current, next) {
		return r, nil
	}

	changes := docrepo.DiffFields(current, next)
	if _, err := s.docs.CommitContent(requestID, next, session.UserName, "Update request content"); err != nil {
		return nil, err
	}

	event, err := workflow.RecordUpdate(r, session.UserID, changes, s.now())
	if err != nil {
		return nil, err
	}
	r.Title = next.Title
	if err := s.store.SaveRequest(ctx, r, r.Version, []workflow.HistoryEvent{*event}); err != nil {
		return nil, err
	}

	s.reindex(r, next.Summary)
	return r, nil
}

func (s *Service) ContentHistory(ctx context.Context, requestID string, limit int) ([]docrepo.CommitInfo, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.docs.History(requestID, limit)
}

func (s *Service) ContentAt(ctx context.Context, requestID, hash string) (docrepo.Content, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return docrepo.Content{}, err
	}
	if hash == "" {
		content, _, err := s.docs.GetHeadContent(requestID)
		return content, err
	}
	return s.docs.GetContentByHash(requestID, hash)
}

func (s *Service) AddApprover(ctx context.Context, session Session, requestID, stageID, userID string) (*workflow.Request, error) {
	if err := s.requireChainEditor(ctx, session, requestID); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown approver", map[string]any{"userId": userID})
		}
		return nil, err
	}
	approver := workflow.Approver{
		UserID:   user.ID,
		Name:     user.DisplayName,
		Position: user.Position,
		Status:   workflow.ApproverPending,
	}

	return s.mutate(ctx, requestID, func(r *workflow.Request, now time.Time) (*workflow.HistoryEvent, error) {
		return workflow.AddApprover(r, stageID, approver, session.UserID, now)
	})
}

func (s *Service) RemoveApprover(ctx context.Context, session Session, requestID, stageID, userID string) (*workflow.Request, error) {
	if err := s.requireChainEditor(ctx, session, requestID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, func(r *workflow.Request, now time.Time) (*workflow.HistoryEvent, error) {
		return workflow.RemoveApprover(r, stageID, userID, session.UserID, now)
	})
}

// requireChainEditor gates approver-line edits to the requester and admins.
func (s *Service) requireChainEditor(ctx context.Context, session Session, requestID string) error {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if session.UserID != r.RequesterID && !s.Can(session.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "only the requester or an admin can edit the approval chain", nil)
	}
	return nil
}

// mutate reloads, re-applies and saves under the optimistic version check.
func (s *Service) mutate(ctx context.Context, requestID string, op func(r *workflow.Request, now time.Time) (*workflow.HistoryEvent, error)) (*workflow.Request, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		r, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		event, err := op(r, s.now())
		if err != nil {
			return nil, err
		}
		if err := s.store.SaveRequest(ctx, r, r.Version, []workflow.HistoryEvent{*event}); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return nil, err
		}
		s.reindex(r, "")
		return r, nil
	}
	return nil, domainError(http.StatusConflict, "CONFLICT", "Request was modified concurrently, please retry", nil)
}

func (s *Service) AttachFile(ctx context.Context, session Session, requestID, filename, contentType string, size int64, data io.Reader) (store.Attachment, error) {
	if s.blobs == nil {
		return store.Attachment{}, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return store.Attachment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required", nil)
	}

	attachmentID := util.NewID("att")
	objectKey := requestID + "/" + attachmentID
	if err := s.blobs.Put(ctx, objectKey, data, size, contentType); err != nil {
		return store.Attachment{}, err
	}

	if _, err := s.mutate(ctx, requestID, func(r *workflow.Request, now time.Time) (*workflow.HistoryEvent, error) {
		return workflow.RecordAttachment(r, session.UserID, filename, now)
	}); err != nil {
		return store.Attachment{}, err
	}

	item := store.Attachment{
		ID:          attachmentID,
		RequestID:   requestID,
		FileName:    filename,
		ContentType: contentType,
		Size:        size,
		ObjectKey:   objectKey,
		UploadedBy:  session.UserID,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertAttachment(ctx, item); err != nil {
		return store.Attachment{}, err
	}
	return item, nil
}

func (s *Service) ListAttachments(ctx context.Context, requestID string) ([]store.Attachment, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, requestID)
}

func (s *Service) OpenAttachment(ctx context.Context, requestID, attachmentID string) (store.Attachment, io.ReadCloser, error) {
	if s.blobs == nil {
		return store.Attachment{}, nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	item, err := s.store.GetAttachment(ctx, requestID, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	body, err := s.blobs.Get(ctx, item.ObjectKey)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	return item, body, nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	return s.exporter.Export(ctx, req)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// reindex pushes the request into the search index. The summary lives in the
// content repo, so callers that don't already have it leave it blank and it
// is read back from the head revision.
func (s *Service) reindex(r *workflow.Request, summary string) {
	if s.search == nil {
		return
	}
	if summary == "" && s.docs != nil {
		if content, _, err := s.docs.GetHeadContent(r.ID); err == nil {
			summary = content.Summary
		}
	}
	s.search.IndexRequest(search.RequestRecord{
		ID:            r.ID,
		Title:         r.Title,
		Summary:       summary,
		Kind:          r.Kind,
		Status:        string(r.Status),
		RequesterName: r.RequesterName,
	})
}
