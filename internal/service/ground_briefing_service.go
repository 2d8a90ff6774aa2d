package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type groundBriefingRepository interface {
	Request(ctx context.Context, studentID string, topicIDs []string, date time.Time) ([]string, error)
	FindView(ctx context.Context, id string) (*models.GroundBriefingView, error)
	SignOff(ctx context.Context, id, instructorID, notes string, signedAt time.Time) error
	ListForStudent(ctx context.Context, studentID string) ([]models.GroundBriefingView, error)
	ListPending(ctx context.Context, limit int) ([]models.GroundBriefingView, error)
}

type briefingTopicReader interface {
	ListBriefingTopics(ctx context.Context) ([]models.GroundBriefingTopic, error)
}

// GroundBriefingService tracks ground-school topics per student.
type GroundBriefingService struct {
	repo      groundBriefingRepository
	topics    briefingTopicReader
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGroundBriefingService constructs the service.
func NewGroundBriefingService(repo groundBriefingRepository, topics briefingTopicReader, cacheSvc cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *GroundBriefingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &GroundBriefingService{repo: repo, topics: topics, cache: cacheSvc, validator: validate, logger: logger, now: time.Now}
}

// Request records that the student wants to be briefed on the given topics.
// Completed topics are skipped.
func (s *GroundBriefingService) Request(ctx context.Context, actor Actor, req dto.RequestBriefingsRequest) (*models.BriefingOverview, error) {
	if !actor.isStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can request ground briefings")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid briefing request")
	}

	date := s.now().UTC()
	if req.Date != "" {
		parsed, err := parseDate("date", req.Date)
		if err != nil {
			return nil, err
		}
		date = parsed
	}

	topics, err := s.topics.ListBriefingTopics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load briefing topics")
	}
	known := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		known[t.ID] = struct{}{}
	}
	for _, id := range req.TopicIDs {
		if _, ok := known[id]; !ok {
			return nil, fieldError("topic_ids", "unknown briefing topic "+id)
		}
	}

	ids, err := s.repo.Request(ctx, actor.ID, req.TopicIDs, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request ground briefings")
	}
	for _, id := range ids {
		auditCreate(ctx, models.TableGroundBriefings, id, map[string]interface{}{
			"student_id": actor.ID,
			"date":       date.Format(models.DateLayout),
		})
	}
	s.invalidateDashboards(ctx)

	return s.Overview(ctx, actor, actor.ID)
}

// SignOff signs a requested briefing. A briefing can be signed only once and
// the signer becomes its instructor.
func (s *GroundBriefingService) SignOff(ctx context.Context, actor Actor, id string, req dto.SignOffBriefingRequest) (*models.GroundBriefingView, error) {
	if !actor.isInstructor() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can sign off ground briefings")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid briefing sign-off")
	}

	before, err := s.repo.FindView(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ground briefing not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ground briefing")
	}
	if before.SignedOff {
		return nil, appErrors.Clone(appErrors.ErrAlreadySigned, "ground briefing already signed off")
	}

	if err := s.repo.SignOff(ctx, id, actor.ID, req.Notes, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadySigned, "ground briefing already signed off")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign off ground briefing")
	}

	after, err := s.repo.FindView(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ground briefing")
	}
	auditUpdate(ctx, models.TableGroundBriefings, id, before.GroundBriefing, after.GroundBriefing)
	s.invalidateDashboards(ctx)
	return after, nil
}

// Overview lists every briefing topic with the student's status on it.
func (s *GroundBriefingService) Overview(ctx context.Context, actor Actor, studentID string) (*models.BriefingOverview, error) {
	if actor.isStudent() && actor.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only view your own ground briefings.")
	}

	topics, err := s.topics.ListBriefingTopics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load briefing topics")
	}
	briefings, err := s.repo.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ground briefings")
	}
	return BuildBriefingOverview(studentID, topics, briefings), nil
}

// Pending returns unsigned briefing requests, oldest first.
func (s *GroundBriefingService) Pending(ctx context.Context, limit int) ([]models.GroundBriefingView, error) {
	if limit <= 0 {
		limit = 10
	}
	briefings, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending briefings")
	}
	return briefings, nil
}

func (s *GroundBriefingService) invalidateDashboards(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, dashboardCachePattern)
	}
}

// BuildBriefingOverview merges the topic syllabus with a student's briefings.
func BuildBriefingOverview(studentID string, topics []models.GroundBriefingTopic, briefings []models.GroundBriefingView) *models.BriefingOverview {
	byTopic := make(map[string]models.GroundBriefingView, len(briefings))
	for _, b := range briefings {
		byTopic[b.TopicID] = b
	}

	overview := &models.BriefingOverview{StudentID: studentID, Topics: make([]models.BriefingTopicStatus, 0, len(topics)), Total: len(topics)}
	for _, topic := range topics {
		status := models.BriefingTopicStatus{Topic: topic, Status: models.BriefingStatusNotStarted}
		if b, ok := byTopic[topic.ID]; ok {
			briefing := b
			status.Briefing = &briefing
			if b.SignedOff {
				status.Status = models.BriefingStatusCompleted
			} else {
				status.Status = models.BriefingStatusRequested
			}
		}
		switch status.Status {
		case models.BriefingStatusCompleted:
			overview.Completed++
		case models.BriefingStatusRequested:
			overview.Requested++
		default:
			overview.NotStarted++
		}
		overview.Topics = append(overview.Topics, status)
	}
	return overview
}
