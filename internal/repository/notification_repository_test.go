package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

func TestGetOrCreateNotification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	sentAt := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "notification_type", "training_record_id", "created_at", "is_sent", "sent_at"}).
		AddRow("n1", "s1", models.NotificationTypeStudentRevision, "r1", sentAt, true, sentAt)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (user_id, notification_type, training_record_id) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "s1", models.NotificationTypeStudentRevision, "r1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	recordID := "r1"
	n := &models.PendingNotification{UserID: "s1", NotificationType: models.NotificationTypeStudentRevision, TrainingRecordID: &recordID}
	require.NoError(t, repo.GetOrCreate(context.Background(), n))
	assert.Equal(t, "n1", n.ID)
	assert.True(t, n.Sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationSent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	ts := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("SET is_sent = TRUE, sent_at = $2 WHERE id = $1 AND is_sent = FALSE")).
		WithArgs("n1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "n1", ts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListInstructorPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"instructor_id", "username", "email", "first_name", "last_name", "unsigned_count"}).
		AddRow("i1", "ivan", "ivan@club.test", "Ivan", "I", 3).
		AddRow("i2", "jane", "jane@club.test", "Jane", "J", 0).
		AddRow("i3", "nomail", "", "No", "Mail", 2)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.user_type = 'instructor' AND u.is_active = TRUE")).WillReturnRows(rows)

	pending, err := repo.ListInstructorPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, 3, pending[0].Unsigned)
}
