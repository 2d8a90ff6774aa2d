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

// NotificationRepository tracks queued transactional emails.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// GetOrCreate stores a pending notification, or loads the existing one for
// the same user, type and record.
func (r *NotificationRepository) GetOrCreate(ctx context.Context, n *models.PendingNotification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pending_notifications (id, user_id, notification_type, training_record_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, notification_type, training_record_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING id, user_id, notification_type, training_record_id, created_at, is_sent, sent_at`
	if err := r.db.GetContext(ctx, n, query, uuid.NewString(), n.UserID, n.NotificationType, n.TrainingRecordID, n.CreatedAt); err != nil {
		return fmt.Errorf("get or create notification: %w", err)
	}
	return nil
}

// FindByID returns a notification.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.PendingNotification, error) {
	const query = `SELECT id, user_id, notification_type, training_record_id, created_at, is_sent, sent_at FROM pending_notifications WHERE id = $1`
	var n models.PendingNotification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return &n, nil
}

// MarkSent flags a notification as delivered. Only the first call wins.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE pending_notifications SET is_sent = TRUE, sent_at = $2 WHERE id = $1 AND is_sent = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// ListInstructorPending returns every active instructor with their count of
// unsigned records, including those with none.
func (r *NotificationRepository) ListInstructorPending(ctx context.Context) ([]models.InstructorPending, error) {
	const query = `SELECT u.id AS instructor_id, u.username, u.email, u.first_name, u.last_name,
    COUNT(tr.id) AS unsigned_count
FROM users u
LEFT JOIN training_records tr ON tr.instructor_id = u.id AND tr.signed_off = FALSE
WHERE u.user_type = 'instructor' AND u.is_active = TRUE
GROUP BY u.id, u.username, u.email, u.first_name, u.last_name
ORDER BY u.username`
	var rows []models.InstructorPending
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list instructor pending counts: %w", err)
	}
	return rows, nil
}
