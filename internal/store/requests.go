package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"orgflow/api/internal/workflow"
)

func (s *PostgresStore) CreateRequest(ctx context.Context, r *workflow.Request) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_requests (id, title, kind, requester_id, requester_name, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
	`, r.ID, r.Title, r.Kind, r.RequesterID, r.RequesterName, string(r.Status), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	if err := insertStages(ctx, tx, r); err != nil {
		return err
	}

	for ordinal, ref := range r.References {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO request_references (request_id, user_id, name, position, ordinal)
			VALUES ($1, $2, $3, $4, $5)
		`, r.ID, ref.UserID, ref.Name, ref.Position, ordinal)
		if err != nil {
			return fmt.Errorf("insert reference: %w", err)
		}
	}

	if err := insertHistoryEvents(ctx, tx, r.ID, r.History); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	r.Version = 1
	return nil
}

// SaveRequest persists the mutated aggregate with a compare-and-swap on
// the version column. newEvents holds only the history events appended
// during this mutation. A lost race returns ErrConflict.
func (s *PostgresStore) SaveRequest(ctx context.Context, r *workflow.Request, expectedVersion int64, newEvents []workflow.HistoryEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save request: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE approval_requests
		SET title=$3, kind=$4, status=$5, version=version+1, updated_at=$6
		WHERE id=$1 AND version=$2
	`, r.ID, expectedVersion, r.Title, r.Kind, string(r.Status), r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM approval_requests WHERE id=$1)`, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check request exists: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
		return ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM approval_stages WHERE request_id=$1`, r.ID); err != nil {
		return fmt.Errorf("clear stages: %w", err)
	}
	if err := insertStages(ctx, tx, r); err != nil {
		return err
	}

	if err := insertHistoryEvents(ctx, tx, r.ID, newEvents); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save request: %w", err)
	}
	r.Version = expectedVersion + 1
	return nil
}

func insertStages(ctx context.Context, tx *sql.Tx, r *workflow.Request) error {
	for _, stage := range r.Stages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO approval_stages (id, request_id, sequence_index, status)
			VALUES ($1, $2, $3, $4)
		`, stage.ID, r.ID, stage.SequenceIndex, string(stage.Status))
		if err != nil {
			return fmt.Errorf("insert stage: %w", err)
		}
		for ordinal, approver := range stage.Approvers {
			var decidedAt any
			if approver.DecidedAt != nil {
				decidedAt = *approver.DecidedAt
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO approvers (stage_id, user_id, name, position, status, decided_at, ordinal)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, stage.ID, approver.UserID, approver.Name, approver.Position, string(approver.Status), decidedAt, ordinal)
			if err != nil {
				return fmt.Errorf("insert approver: %w", err)
			}
		}
	}
	return nil
}

func insertHistoryEvents(ctx context.Context, tx *sql.Tx, requestID string, events []workflow.HistoryEvent) error {
	for _, event := range events {
		changes, err := json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("marshal event changes: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO history_events (id, request_id, actor_user_id, action, occurred_at, changes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, event.ID, requestID, event.ActorUserID, string(event.Action), event.Timestamp, changes)
		if err != nil {
			return fmt.Errorf("insert history event: %w", err)
		}
	}
	return nil
}

// InsertComment appends a comment without touching the request version.
// Comments never affect derived state, so they need no CAS.
func (s *PostgresStore) InsertComment(ctx context.Context, requestID string, c workflow.CommentEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, request_id, actor_user_id, content, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, requestID, c.ActorUserID, c.Content, c.Timestamp)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (*workflow.Request, error) {
	var r workflow.Request
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, kind, requester_id, requester_name, status, version, created_at, updated_at
		FROM approval_requests
		WHERE id=$1
	`, requestID).Scan(&r.ID, &r.Title, &r.Kind, &r.RequesterID, &r.RequesterName, &r.Status, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := s.loadStages(ctx, &r); err != nil {
		return nil, err
	}
	if err := s.loadReferences(ctx, &r); err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, &r); err != nil {
		return nil, err
	}
	if err := s.loadComments(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) loadStages(ctx context.Context, r *workflow.Request) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sequence_index, status
		FROM approval_stages
		WHERE request_id=$1
		ORDER BY sequence_index ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	defer rows.Close()

	r.Stages = make([]workflow.Stage, 0)
	for rows.Next() {
		var stage workflow.Stage
		if err := rows.Scan(&stage.ID, &stage.SequenceIndex, &stage.Status); err != nil {
			return fmt.Errorf("scan stage: %w", err)
		}
		r.Stages = append(r.Stages, stage)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate stages: %w", err)
	}

	for i := range r.Stages {
		if err := s.loadApprovers(ctx, &r.Stages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) loadApprovers(ctx context.Context, stage *workflow.Stage) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, position, status, decided_at
		FROM approvers
		WHERE stage_id=$1
		ORDER BY ordinal ASC
	`, stage.ID)
	if err != nil {
		return fmt.Errorf("load approvers: %w", err)
	}
	defer rows.Close()

	stage.Approvers = make([]workflow.Approver, 0)
	for rows.Next() {
		var approver workflow.Approver
		var decidedAt sql.NullTime
		if err := rows.Scan(&approver.UserID, &approver.Name, &approver.Position, &approver.Status, &decidedAt); err != nil {
			return fmt.Errorf("scan approver: %w", err)
		}
		if decidedAt.Valid {
			approver.DecidedAt = &decidedAt.Time
		}
		stage.Approvers = append(stage.Approvers, approver)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate approvers: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadReferences(ctx context.Context, r *workflow.Request) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, position
		FROM request_references
		WHERE request_id=$1
		ORDER BY ordinal ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("load references: %w", err)
	}
	defer rows.Close()

	r.References = make([]workflow.Reference, 0)
	for rows.Next() {
		var ref workflow.Reference
		if err := rows.Scan(&ref.UserID, &ref.Name, &ref.Position); err != nil {
			return fmt.Errorf("scan reference: %w", err)
		}
		r.References = append(r.References, ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate references: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadHistory(ctx context.Context, r *workflow.Request) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_user_id, action, occurred_at, changes
		FROM history_events
		WHERE request_id=$1
		ORDER BY seq ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	r.History = make([]workflow.HistoryEvent, 0)
	for rows.Next() {
		var event workflow.HistoryEvent
		var changes []byte
		if err := rows.Scan(&event.ID, &event.ActorUserID, &event.Action, &event.Timestamp, &changes); err != nil {
			return fmt.Errorf("scan history event: %w", err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &event.Changes); err != nil {
				return fmt.Errorf("unmarshal event changes: %w", err)
			}
		}
		r.History = append(r.History, event)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate history: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadComments(ctx context.Context, r *workflow.Request) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_user_id, content, occurred_at
		FROM comments
		WHERE request_id=$1
		ORDER BY seq ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()

	r.Comments = make([]workflow.CommentEvent, 0)
	for rows.Next() {
		var comment workflow.CommentEvent
		if err := rows.Scan(&comment.ID, &comment.ActorUserID, &comment.Content, &comment.Timestamp); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		r.Comments = append(r.Comments, comment)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter ListFilter) ([]RequestSummary, error) {
	query := `
		SELECT DISTINCT r.id, r.title, r.kind, r.requester_id, r.requester_name, r.status, r.created_at, r.updated_at
		FROM approval_requests r
	`
	args := make([]any, 0, 6)
	where := make([]string, 0, 4)

	if filter.ApproverID != "" {
		query += `		JOIN approval_stages st ON st.request_id = r.id
		JOIN approvers ap ON ap.stage_id = st.id
`
		args = append(args, filter.ApproverID)
		where = append(where, fmt.Sprintf("ap.user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, fmt.Sprintf("r.kind = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		where = append(where, fmt.Sprintf("r.requester_id = $%d", len(args)))
	}

	for i, clause := range where {
		if i == 0 {
			query += "		WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += "\n		ORDER BY r.updated_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]RequestSummary, 0)
	for rows.Next() {
		var item RequestSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.Kind, &item.RequesterID, &item.RequesterName, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan request summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}
