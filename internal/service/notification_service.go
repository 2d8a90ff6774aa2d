package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/jobs"
	"github.com/noah-isme/gliding-club-api/pkg/mailer"
)

// JobTypeRevisionEmail is the queue job that delivers a revision email.
const JobTypeRevisionEmail = "revision_email"

const digestRecordLimit = 50

type notificationRepository interface {
	GetOrCreate(ctx context.Context, n *models.PendingNotification) error
	FindByID(ctx context.Context, id string) (*models.PendingNotification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	ListInstructorPending(ctx context.Context) ([]models.InstructorPending, error)
}

type notificationRecordReader interface {
	FindView(ctx context.Context, id string) (*models.TrainingRecordView, error)
	List(ctx context.Context, filter models.TrainingRecordFilter) ([]models.TrainingRecordView, int, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationService sends the transactional emails of the record workflow.
// Every failure is classified and logged, never returned to the request that
// triggered it.
type NotificationService struct {
	repo    notificationRepository
	records notificationRecordReader
	users   recordUserReader
	mailer  mailer.Mailer
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
	siteURL string
	now     func() time.Time
}

// NewNotificationService constructs the service. The queue is optional; when
// nil, revision emails are sent inline.
func NewNotificationService(repo notificationRepository, records notificationRecordReader, users recordUserReader, m mailer.Mailer, metrics *MetricsService, logger *zap.Logger, siteURL string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if siteURL == "" {
		siteURL = "http://localhost:8080"
	}
	return &NotificationService{
		repo:    repo,
		records: records,
		users:   users,
		mailer:  m,
		metrics: metrics,
		logger:  logger,
		siteURL: strings.TrimRight(siteURL, "/"),
		now:     time.Now,
	}
}

// UseQueue routes revision emails through the background queue.
func (s *NotificationService) UseQueue(queue jobEnqueuer) {
	s.queue = queue
}

// NotifyRevision records that the student must look at new instructor
// comments and schedules the email.
func (s *NotificationService) NotifyRevision(ctx context.Context, studentID, recordID string) {
	n := &models.PendingNotification{
		UserID:           studentID,
		NotificationType: models.NotificationTypeStudentRevision,
		TrainingRecordID: &recordID,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.repo.GetOrCreate(ctx, n); err != nil {
		s.logger.Error("failed to create notification record", zap.String("record_id", recordID), zap.Error(err))
		return
	}
	if n.Sent {
		s.logger.Info("revision notification already sent", zap.String("record_id", recordID))
		return
	}

	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: n.ID, Type: JobTypeRevisionEmail, Payload: n.ID, Enqueued: s.now()})
		if err == nil {
			return
		}
		s.logger.Warn("email queue rejected revision job, sending inline", zap.String("notification_id", n.ID), zap.Error(err))
	}
	if err := s.deliverRevision(ctx, n.ID); err != nil {
		s.logger.Warn("revision email not delivered", zap.String("notification_id", n.ID), zap.String("reason", ClassifyEmailError(err)))
	}
}

// HandleJob is the email queue handler.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeRevisionEmail:
		id, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("revision job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return s.deliverRevision(ctx, id)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (s *NotificationService) deliverRevision(ctx context.Context, notificationID string) error {
	n, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load notification: %w", err)
	}
	if n.Sent || n.TrainingRecordID == nil {
		return nil
	}

	student, err := s.users.FindByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	if strings.TrimSpace(student.Email) == "" {
		s.logger.Warn("skipping revision notification, student has no email address", zap.String("record_id", *n.TrainingRecordID))
		s.metrics.IncEmail("revision", "skipped")
		return nil
	}

	record, err := s.records.FindView(ctx, *n.TrainingRecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load training record: %w", err)
	}

	msg := mailer.Message{
		To:      []mail.Address{{Name: student.FullName(), Address: student.Email}},
		Subject: fmt.Sprintf("Training Record #%s - Instructor Comments Added", record.ID),
	}
	if err := msg.Render(mailer.TemplateRevisionNeeded, mailer.RevisionNeededData{
		StudentName:    student.FullName(),
		InstructorName: record.InstructorName,
		RecordID:       record.ID,
		Date:           record.Date.Format(models.DateLayout),
		Topic:          record.TopicName,
		Comments:       record.InstructorComments,
		RecordURL:      fmt.Sprintf("%s/records/%s", s.siteURL, record.ID),
	}); err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send revision notification",
			zap.String("record_id", record.ID),
			zap.String("classification", ClassifyEmailError(err)),
			zap.Error(err))
		s.metrics.IncEmail("revision", "error")
		return err
	}

	if err := s.repo.MarkSent(ctx, n.ID, s.now().UTC()); err != nil {
		s.logger.Error("failed to mark notification sent", zap.String("notification_id", n.ID), zap.Error(err))
	}
	s.metrics.IncEmail("revision", "sent")
	s.logger.Info("sent revision notification", zap.String("record_id", record.ID))
	return nil
}

// SendWeeklyDigest emails every active instructor that has unsigned records
// assigned. Instructors without an email address are counted as skipped.
func (s *NotificationService) SendWeeklyDigest(ctx context.Context) (*models.DigestResult, error) {
	instructors, err := s.repo.ListInstructorPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructors")
	}

	result := &models.DigestResult{TotalInstructors: len(instructors)}
	s.logger.Info("starting weekly instructor digest", zap.Int("instructors", len(instructors)))

	for _, instructor := range instructors {
		if strings.TrimSpace(instructor.Email) == "" {
			s.logger.Warn("skipping instructor without email address", zap.String("instructor_id", instructor.InstructorID))
			result.SkippedCount++
			continue
		}
		if instructor.Unsigned == 0 {
			continue
		}

		if err := s.sendDigest(ctx, instructor); err != nil {
			result.ErrorCount++
			s.metrics.IncEmail("digest", "error")
			s.logger.Error("failed to send weekly digest",
				zap.String("instructor_id", instructor.InstructorID),
				zap.String("classification", ClassifyEmailError(err)),
				zap.Error(err))
			continue
		}
		result.SentCount++
		s.metrics.IncEmail("digest", "sent")
	}

	s.logger.Info("weekly digest completed",
		zap.Int("sent", result.SentCount),
		zap.Int("errors", result.ErrorCount),
		zap.Int("skipped", result.SkippedCount))
	return result, nil
}

func (s *NotificationService) sendDigest(ctx context.Context, instructor models.InstructorPending) error {
	signed := false
	records, _, err := s.records.List(ctx, models.TrainingRecordFilter{
		InstructorID: instructor.InstructorID,
		SignedOff:    &signed,
		Page:         1,
		PageSize:     digestRecordLimit,
	})
	if err != nil {
		return fmt.Errorf("list unsigned records: %w", err)
	}

	name := strings.TrimSpace(instructor.FirstName + " " + instructor.LastName)
	if name == "" {
		name = instructor.Username
	}
	data := mailer.WeeklyDigestData{InstructorName: name, Count: instructor.Unsigned, SiteURL: s.siteURL}
	for _, r := range records {
		data.Records = append(data.Records, mailer.DigestRecord{
			Date:        r.Date.Format(models.DateLayout),
			StudentName: r.StudentName,
			Topic:       r.TopicName,
			Duration:    models.FormatDuration(r.FlightDuration),
		})
	}

	msg := mailer.Message{
		To:      []mail.Address{{Name: name, Address: instructor.Email}},
		Subject: fmt.Sprintf("Weekly Digest - %d Records Awaiting Sign-Off", instructor.Unsigned),
	}
	if err := msg.Render(mailer.TemplateWeeklyDigest, data); err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

// ClassifyEmailError maps a provider error to a message safe to show users.
func ClassifyEmailError(err error) string {
	if err == nil {
		return ""
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "access"), strings.Contains(text, "permission"), strings.Contains(text, "credential"):
		return "Email service configuration issue"
	case strings.Contains(text, "timeout"), strings.Contains(text, "connection"):
		return "Email service temporarily unavailable"
	case strings.Contains(text, "invalid") && strings.Contains(text, "email"):
		return "Invalid email address"
	default:
		return "Email service error"
	}
}
