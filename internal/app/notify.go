package app

import (
	"context"
	"log"
	"strings"
	"time"

	"orgflow/api/internal/workflow"
)

const notifyTimeout = 10 * time.Second

// SendVerificationEmail delivers the signup verification link in the
// background. A no-op when SMTP is not configured.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() || to == "" {
		return
	}
	verificationURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/verify-email?token=" + token
	go func() {
		if err := s.mail.SendVerificationEmail(to, userName, verificationURL); err != nil {
			log.Printf("send verification email: %v", err)
		}
	}()
}

// notifyStageApprovers tells every pending approver of the given stage that
// a decision is waiting on them.
func (s *Service) notifyStageApprovers(r *workflow.Request, stageIdx int) {
	if !s.SMTPConfigured() || stageIdx < 0 || stageIdx >= len(r.Stages) {
		return
	}
	stage := r.Stages[stageIdx]
	requestURL := s.requestURL(r.ID)
	title := r.Title
	requesterName := r.RequesterName

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		for _, approver := range stage.Approvers {
			if approver.Status != workflow.ApproverPending {
				continue
			}
			user, err := s.store.GetUserByID(ctx, approver.UserID)
			if err != nil || user.Email == "" {
				continue
			}
			if err := s.mail.SendDecisionNeededEmail(user.Email, user.DisplayName, title, requesterName, requestURL); err != nil {
				log.Printf("notify approver %s: %v", approver.UserID, err)
			}
		}
	}()
}

// notifyDecisionMade tells the requester their request reached a terminal
// status.
func (s *Service) notifyDecisionMade(r *workflow.Request, deciderName string) {
	if !s.SMTPConfigured() {
		return
	}
	requestURL := s.requestURL(r.ID)
	title := r.Title
	outcome := string(r.Status)
	requesterID := r.RequesterID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		user, err := s.store.GetUserByID(ctx, requesterID)
		if err != nil || user.Email == "" {
			return
		}
		if err := s.mail.SendDecisionMadeEmail(user.Email, user.DisplayName, title, outcome, deciderName, requestURL); err != nil {
			log.Printf("notify requester %s: %v", requesterID, err)
		}
	}()
}

// notifyNewComment tells the requester someone commented on their request.
func (s *Service) notifyNewComment(r *workflow.Request, commenterID, commenterName string) {
	if !s.SMTPConfigured() || commenterID == r.RequesterID {
		return
	}
	requestURL := s.requestURL(r.ID)
	title := r.Title
	requesterID := r.RequesterID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		user, err := s.store.GetUserByID(ctx, requesterID)
		if err != nil || user.Email == "" {
			return
		}
		if err := s.mail.SendCommentEmail(user.Email, user.DisplayName, title, commenterName, requestURL); err != nil {
			log.Printf("notify comment on %s: %v", r.ID, err)
		}
	}()
}

func (s *Service) requestURL(requestID string) string {
	return strings.TrimRight(s.cfg.AppBaseURL, "/") + "/requests/" + requestID
}
