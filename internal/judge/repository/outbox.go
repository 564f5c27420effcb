package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fuzoj/internal/common/db"
	appErr "fuzoj/pkg/errors"
)

// OutboxEvent is a row in the submission_event_outbox table.
type OutboxEvent struct {
	ID           string
	SubmissionID string
	EventType    string
	Payload      []byte
	CreatedAt    time.Time
	PublishedAt  *time.Time
}

// OutboxRepository persists domain events alongside the business write that
// produced them, and hands unpublished rows to the sweeper.
type OutboxRepository struct {
	db db.Database
}

// NewOutboxRepository creates a new outbox repository.
func NewOutboxRepository(database db.Database) *OutboxRepository {
	return &OutboxRepository{db: database}
}

// InsertEvent writes an outbox row. Call within the same transaction as the
// business write it accompanies so both commit or neither does.
func (r *OutboxRepository) InsertEvent(ctx context.Context, tx db.Transaction, submissionID, eventType string, payload []byte) (string, error) {
	if submissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	if eventType == "" {
		return "", appErr.ValidationError("event_type", "required")
	}
	id := uuid.NewString()
	query := `
		INSERT INTO submission_event_outbox
		(id, submission_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, id, submissionID, eventType, payload, time.Now())
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DatabaseError, "insert outbox event failed")
	}
	return id, nil
}

// FetchUnpublished returns up to limit unpublished rows, oldest first.
func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, submission_id, event_type, payload, created_at
		FROM submission_event_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "fetch unpublished outbox events failed")
	}
	defer rows.Close()

	events := make([]OutboxEvent, 0, limit)
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.SubmissionID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan outbox event failed")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate outbox events failed")
	}
	return events, nil
}

// MarkPublished records that an outbox row has been delivered to the broker.
// Safe to call twice for the same id: a second publish attempt after a crash
// between publish and mark is a harmless no-op since event ids are stable.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	if id == "" {
		return appErr.ValidationError("id", "required")
	}
	query := `
		UPDATE submission_event_outbox
		SET published_at = ?
		WHERE id = ? AND published_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "mark outbox event published failed")
	}
	return nil
}
