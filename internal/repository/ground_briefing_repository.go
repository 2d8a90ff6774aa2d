package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

const briefingViewSelect = `SELECT gb.id, gb.student_id, gb.topic_id, gb.instructor_id, gb.date, gb.notes, gb.signed_off, gb.sign_off_date, gb.created_at, gb.updated_at,
    t.number AS topic_number, t.name AS topic_name,
    COALESCE(NULLIF(TRIM(s.first_name || ' ' || s.last_name), ''), s.username) AS student_name,
    COALESCE(NULLIF(TRIM(i.first_name || ' ' || i.last_name), ''), i.username, '') AS instructor_name
FROM ground_briefings gb
JOIN ground_briefing_topics t ON t.id = gb.topic_id
JOIN users s ON s.id = gb.student_id
LEFT JOIN users i ON i.id = gb.instructor_id`

// GroundBriefingRepository stores ground-school briefing progress.
type GroundBriefingRepository struct {
	db *sqlx.DB
}

// NewGroundBriefingRepository constructs the repository.
func NewGroundBriefingRepository(db *sqlx.DB) *GroundBriefingRepository {
	return &GroundBriefingRepository{db: db}
}

// Request upserts briefing requests for the given topics. Topics that are
// already signed off are left untouched. The ids of touched rows are returned.
func (r *GroundBriefingRepository) Request(ctx context.Context, studentID string, topicIDs []string, date time.Time) (ids []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin briefing transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO ground_briefings (id, student_id, topic_id, date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (student_id, topic_id) DO UPDATE SET date = EXCLUDED.date, updated_at = EXCLUDED.updated_at
WHERE ground_briefings.signed_off = FALSE
RETURNING id`
	now := time.Now().UTC()
	for _, topicID := range topicIDs {
		var id string
		err = tx.GetContext(ctx, &id, query, uuid.NewString(), studentID, topicID, date, now)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("request briefing: %w", err)
		}
		ids = append(ids, id)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit briefing requests: %w", err)
	}
	return ids, nil
}

// FindView returns a briefing with display fields.
func (r *GroundBriefingRepository) FindView(ctx context.Context, id string) (*models.GroundBriefingView, error) {
	query := briefingViewSelect + ` WHERE gb.id = $1`
	var view models.GroundBriefingView
	if err := r.db.GetContext(ctx, &view, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find briefing: %w", err)
	}
	return &view, nil
}

// SignOff signs a briefing once and records the signer as its instructor.
// sql.ErrNoRows is returned when it is missing or already signed.
func (r *GroundBriefingRepository) SignOff(ctx context.Context, id, instructorID, notes string, signedAt time.Time) error {
	const query = `UPDATE ground_briefings SET signed_off = TRUE, sign_off_date = $3, instructor_id = $2, notes = CASE WHEN $4::text = '' THEN notes ELSE $4::text END, updated_at = $3 WHERE id = $1 AND signed_off = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, instructorID, signedAt, notes)
	if err != nil {
		return fmt.Errorf("sign off briefing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sign off briefing: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListForStudent returns every briefing of a student by topic number.
func (r *GroundBriefingRepository) ListForStudent(ctx context.Context, studentID string) ([]models.GroundBriefingView, error) {
	query := briefingViewSelect + ` WHERE gb.student_id = $1 ORDER BY t.number`
	var briefings []models.GroundBriefingView
	if err := r.db.SelectContext(ctx, &briefings, query, studentID); err != nil {
		return nil, fmt.Errorf("list student briefings: %w", err)
	}
	return briefings, nil
}

// ListPending returns requested briefings awaiting an instructor, oldest first.
func (r *GroundBriefingRepository) ListPending(ctx context.Context, limit int) ([]models.GroundBriefingView, error) {
	query := briefingViewSelect + fmt.Sprintf(` WHERE gb.signed_off = FALSE ORDER BY gb.date, gb.created_at LIMIT %d`, limit)
	var briefings []models.GroundBriefingView
	if err := r.db.SelectContext(ctx, &briefings, query); err != nil {
		return nil, fmt.Errorf("list pending briefings: %w", err)
	}
	return briefings, nil
}
