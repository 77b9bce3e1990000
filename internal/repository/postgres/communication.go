package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
)

const communicationColumns = `id, student_enrolment, subject_code, teacher_email, message,
	comment, action_taken, timestamp, pool_id, state, created_at`

type communicationRepository struct {
	BaseRepository
}

func NewCommunicationRepository(base BaseRepository) repository.CommunicationRepository {
	return &communicationRepository{base}
}

func (r *communicationRepository) Query(ctx context.Context, filter model.CommunicationFilter) (out []*model.Communication, err error) {
	start := time.Now()
	defer func() { r.observe("query_communications", start, err) }()

	query, args := buildCommunicationQuery(filter)
	if err = r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query communications: %w", err)
	}
	return out, nil
}

// buildCommunicationQuery renders the time-window select. From is inclusive,
// To is exclusive.
func buildCommunicationQuery(filter model.CommunicationFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("timestamp < $%d", len(args)))
	}

	query := "SELECT " + communicationColumns + " FROM communications"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"
	return query, args
}

func (r *communicationRepository) Create(ctx context.Context, c *model.Communication) error {
	if c == nil {
		return fmt.Errorf("communication cannot be nil")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.State == "" {
		c.State = model.FollowUpPending
	}

	query := `
		INSERT INTO communications (
			id, student_enrolment, subject_code, teacher_email, message,
			comment, action_taken, timestamp, pool_id, state, created_at
		) VALUES (
			:id, :student_enrolment, :subject_code, :teacher_email, :message,
			:comment, :action_taken, :timestamp, :pool_id, :state, :created_at
		)
	`
	start := time.Now()
	_, err := r.db.NamedExecContext(ctx, query, c)
	r.observe("create_communication", start, err)
	if err != nil {
		return fmt.Errorf("failed to create communication: %w", err)
	}
	return nil
}
