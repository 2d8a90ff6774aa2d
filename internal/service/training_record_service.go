package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/cache"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type trainingRecordRepository interface {
	Create(ctx context.Context, record *models.TrainingRecord, performances []models.ExercisePerformance) error
	Update(ctx context.Context, id string, apply func(current *models.TrainingRecord) error, performances []models.ExercisePerformance) (*models.TrainingRecord, *models.TrainingRecord, error)
	SignOff(ctx context.Context, id string, signedAt time.Time, signature string, expectedUpdatedAt time.Time) error
	FindByID(ctx context.Context, id string) (*models.TrainingRecord, error)
	FindView(ctx context.Context, id string) (*models.TrainingRecordView, error)
	List(ctx context.Context, filter models.TrainingRecordFilter) ([]models.TrainingRecordView, int, error)
	FlightNumber(ctx context.Context, record models.TrainingRecord) (int, error)
	ListPerformances(ctx context.Context, recordID string) ([]models.ExercisePerformanceView, error)
}

type recordCatalogReader interface {
	ListExercises(ctx context.Context) ([]models.Exercise, error)
	FindGlider(ctx context.Context, id string) (*models.Glider, error)
	FindTopic(ctx context.Context, id string) (*models.TrainingTopic, error)
}

type recordUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type revisionNotifier interface {
	NotifyRevision(ctx context.Context, studentID, recordID string)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string)
}

var dashboardCachePattern = cache.Key("dashboard", "*")

// Actor identifies the authenticated caller of a use case.
type Actor struct {
	ID       string
	UserType models.UserType
}

func (a Actor) isStudent() bool    { return a.UserType == models.UserTypeStudent }
func (a Actor) isInstructor() bool { return a.UserType == models.UserTypeInstructor }
func (a Actor) isAdmin() bool      { return a.UserType == models.UserTypeAdmin }

// ActorFromClaims converts token claims into an Actor.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{ID: claims.UserID, UserType: claims.UserType}
}

// Permission messages surfaced to callers.
const (
	msgStudentOwnRecords     = "You can only edit your own training records."
	msgStudentSignedRecord   = "This record has been signed off and can no longer be modified."
	msgInstructorOwnRecords  = "You can only edit training records where you are the instructor."
	msgNotAuthorizedSignOff  = "You are not authorized to sign off this record."
	msgStudentViewOwnRecords = "You can only view your own training records."
)

// TrainingRecordConfig holds workflow tunables.
type TrainingRecordConfig struct {
	SignOffGraceDays int
	PageSize         int
}

// TrainingRecordService implements the record workflow: logging flights,
// editing them under the sign-off rules and signing them off.
type TrainingRecordService struct {
	records   trainingRecordRepository
	catalog   recordCatalogReader
	users     recordUserReader
	notifier  revisionNotifier
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    TrainingRecordConfig
	now       func() time.Time
}

// NewTrainingRecordService constructs the service.
func NewTrainingRecordService(records trainingRecordRepository, catalog recordCatalogReader, users recordUserReader, notifier revisionNotifier, cacheSvc cacheInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg TrainingRecordConfig) *TrainingRecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if cfg.SignOffGraceDays <= 0 {
		cfg.SignOffGraceDays = 7
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &TrainingRecordService{
		records:   records,
		catalog:   catalog,
		users:     users,
		notifier:  notifier,
		cache:     cacheSvc,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

// List returns records visible to the actor. Students only see their own.
func (s *TrainingRecordService) List(ctx context.Context, actor Actor, query dto.TrainingRecordQuery) ([]models.TrainingRecordView, *models.Pagination, error) {
	filter := models.TrainingRecordFilter{
		StudentID:    query.StudentID,
		InstructorID: query.InstructorID,
		SignedOff:    query.SignedOff,
		IsSolo:       query.IsSolo,
		Search:       query.Q,
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if actor.isStudent() {
		filter.StudentID = actor.ID
	}
	if query.DateFrom != "" {
		from, err := parseDate("date_from", query.DateFrom)
		if err != nil {
			return nil, nil, err
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, err := parseDate("date_to", query.DateTo)
		if err != nil {
			return nil, nil, err
		}
		filter.DateTo = &to
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = s.config.PageSize
	}

	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list training records")
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns the full detail of a record.
func (s *TrainingRecordService) Get(ctx context.Context, actor Actor, id string) (*models.TrainingRecordDetail, error) {
	view, err := s.records.FindView(ctx, id)
	if err != nil {
		return nil, s.notFoundOrInternal(err, "failed to load training record")
	}
	if actor.isStudent() && view.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, msgStudentViewOwnRecords)
	}

	flightNumber, err := s.records.FlightNumber(ctx, view.TrainingRecord)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute flight number")
	}
	performances, err := s.records.ListPerformances(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercise performances")
	}
	if !actor.isInstructor() && !actor.isAdmin() {
		view.InternalComments = ""
	}

	now := s.now()
	return &models.TrainingRecordDetail{
		TrainingRecordView:            *view,
		FlightNumber:                  flightNumber,
		Performances:                  performances,
		IsModifiableByInstructor:      view.IsModifiableByInstructor(now, s.config.SignOffGraceDays),
		DaysUntilModificationDeadline: view.DaysUntilModificationDeadline(now, s.config.SignOffGraceDays),
	}, nil
}

// Create logs a new flight. Exercises without a submitted rating are stored
// as not performed.
func (s *TrainingRecordService) Create(ctx context.Context, actor Actor, req dto.CreateTrainingRecordRequest) (*models.TrainingRecordDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid training record payload")
	}

	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}

	record := &models.TrainingRecord{
		TrainingTopicID: req.TrainingTopicID,
		GliderID:        req.GliderID,
		IsSolo:          req.IsSolo,
		Date:            date,
		Field:           strings.TrimSpace(req.Field),
		FlightDuration:  req.FlightDuration,
		StudentComments: req.StudentComments,
		TowHeight:       req.TowHeight,
		CreatedBy:       &actor.ID,
	}

	switch {
	case actor.isStudent():
		record.StudentID = actor.ID
	case req.StudentID == "":
		return nil, fieldError("student_id", "student is required")
	default:
		record.StudentID = req.StudentID
	}
	if !actor.isStudent() {
		record.InstructorComments = req.InstructorComments
		record.InternalComments = req.InternalComments
	}

	record.InstructorID = normalizeOptionalID(req.InstructorID)
	if record.InstructorID == nil && actor.isInstructor() && !record.IsSolo {
		id := actor.ID
		record.InstructorID = &id
	}

	if err := s.checkReferences(ctx, record); err != nil {
		return nil, err
	}

	exercises, err := s.catalog.ListExercises(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercises")
	}
	submitted, err := performancesFromInput(req.Performances, exercises)
	if err != nil {
		return nil, err
	}
	performances := withDefaultPerformances(submitted, exercises)

	if err := s.records.Create(ctx, record, performances); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create training record")
	}

	auditCreate(ctx, models.TableTrainingRecords, record.ID, record)
	for _, p := range performances {
		if p.Performance.Performed() {
			auditCreate(ctx, models.TableExercisePerformances, record.ID+":"+p.ExerciseID, p)
		}
	}

	if actor.isInstructor() && record.InstructorComments != "" && !record.SignedOff {
		s.notifyRevision(ctx, record)
	}
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, record.ID)
}

// Update edits a record under the sign-off rules. The checks run against the
// locked row so a concurrent sign-off cannot slip in between.
func (s *TrainingRecordService) Update(ctx context.Context, actor Actor, id string, req dto.UpdateTrainingRecordRequest) (*models.TrainingRecordDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid training record payload")
	}

	var date *time.Time
	if req.Date != nil {
		parsed, err := parseDate("date", *req.Date)
		if err != nil {
			return nil, err
		}
		date = &parsed
	}

	var performances []models.ExercisePerformance
	if len(req.Performances) > 0 {
		exercises, err := s.catalog.ListExercises(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercises")
		}
		if performances, err = performancesFromInput(req.Performances, exercises); err != nil {
			return nil, err
		}
	}

	now := s.now()
	before, after, err := s.records.Update(ctx, id, func(current *models.TrainingRecord) error {
		if err := s.checkEditable(actor, current, now); err != nil {
			return err
		}
		applyRecordUpdate(current, req, date, !actor.isStudent())
		if err := s.checkReferences(ctx, current); err != nil {
			return err
		}
		if current.SignedOff && current.SignOffTimestamp != nil {
			current.SignatureHash = current.ComputeSignature(*current.SignOffTimestamp)
		}
		return nil
	}, performances)
	if err != nil {
		return nil, s.notFoundOrInternal(err, "failed to update training record")
	}

	auditUpdate(ctx, models.TableTrainingRecords, id, before, after)
	for _, p := range performances {
		auditUpdate(ctx, models.TableExercisePerformances, id+":"+p.ExerciseID, nil, p)
	}

	if actor.isInstructor() && after.InstructorComments != "" && after.InstructorComments != before.InstructorComments && !after.SignedOff {
		s.notifyRevision(ctx, after)
	}
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, id)
}

// SignOff signs an unsigned record as its assigned instructor.
func (s *TrainingRecordService) SignOff(ctx context.Context, actor Actor, id string) (*models.TrainingRecordDetail, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, s.notFoundOrInternal(err, "failed to load training record")
	}
	if !actor.isInstructor() || !record.IsInstructedBy(actor.ID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, msgNotAuthorizedSignOff)
	}
	if record.SignedOff {
		return nil, appErrors.ErrAlreadySigned
	}

	signedAt := s.signOffTime()
	signature := record.ComputeSignature(signedAt)
	if err := s.records.SignOff(ctx, id, signedAt, signature, record.UpdatedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign off training record")
		}
		latest, loadErr := s.records.FindByID(ctx, id)
		if loadErr != nil {
			return nil, s.notFoundOrInternal(loadErr, "failed to load training record")
		}
		if latest.SignedOff {
			return nil, appErrors.ErrAlreadySigned
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "training record changed while signing, please retry")
	}

	after := *record
	after.SignedOff = true
	after.SignOffTimestamp = &signedAt
	after.SignatureHash = signature
	auditUpdate(ctx, models.TableTrainingRecords, id, record, &after)
	s.metrics.IncSignOff()
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, id)
}

// ReviewAndSignOff applies the instructor's corrections and signs in one
// transaction. is_solo is never changed here. A record signed earlier keeps
// its sign-off time and may only be corrected inside the grace window.
func (s *TrainingRecordService) ReviewAndSignOff(ctx context.Context, actor Actor, id string, req dto.SignOffFormRequest) (*models.TrainingRecordDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid sign-off payload")
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	minutes, err := ParseDurationHHMM(req.Duration)
	if err != nil {
		return nil, err
	}

	var performances []models.ExercisePerformance
	if len(req.Performances) > 0 {
		exercises, err := s.catalog.ListExercises(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercises")
		}
		if performances, err = performancesFromInput(req.Performances, exercises); err != nil {
			return nil, err
		}
	}

	now := s.signOffTime()
	newlySigned := false
	before, after, err := s.records.Update(ctx, id, func(current *models.TrainingRecord) error {
		if !actor.isInstructor() || !current.IsInstructedBy(actor.ID) {
			return appErrors.Clone(appErrors.ErrForbidden, msgNotAuthorizedSignOff)
		}
		if current.SignedOff && !current.IsModifiableByInstructor(now, s.config.SignOffGraceDays) {
			return s.windowClosed(current, now)
		}

		current.Date = date
		current.GliderID = req.GliderID
		current.TrainingTopicID = req.TrainingTopicID
		current.Field = strings.TrimSpace(req.Field)
		current.TowHeight = req.TowHeight
		current.FlightDuration = minutes
		current.StudentComments = req.StudentComments
		current.InstructorComments = req.InstructorComments
		current.InternalComments = req.InternalComments
		if err := s.checkReferences(ctx, current); err != nil {
			return err
		}

		signedAt := now
		if current.SignedOff && current.SignOffTimestamp != nil {
			signedAt = *current.SignOffTimestamp
		} else {
			newlySigned = true
		}
		current.SignedOff = true
		current.SignOffTimestamp = &signedAt
		current.SignatureHash = current.ComputeSignature(signedAt)
		return nil
	}, performances)
	if err != nil {
		return nil, s.notFoundOrInternal(err, "failed to sign off training record")
	}

	auditUpdate(ctx, models.TableTrainingRecords, id, before, after)
	for _, p := range performances {
		auditUpdate(ctx, models.TableExercisePerformances, id+":"+p.ExerciseID, nil, p)
	}
	if newlySigned {
		s.metrics.IncSignOff()
	}
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, id)
}

// checkEditable enforces who may change a record and when.
func (s *TrainingRecordService) checkEditable(actor Actor, record *models.TrainingRecord, now time.Time) error {
	switch {
	case actor.isAdmin():
		return nil
	case actor.isStudent():
		if record.StudentID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, msgStudentOwnRecords)
		}
		if record.SignedOff {
			return appErrors.Clone(appErrors.ErrForbidden, msgStudentSignedRecord)
		}
		return nil
	case actor.isInstructor():
		if !record.IsInstructedBy(actor.ID) {
			return appErrors.Clone(appErrors.ErrForbidden, msgInstructorOwnRecords)
		}
		if !record.IsModifiableByInstructor(now, s.config.SignOffGraceDays) {
			return s.windowClosed(record, now)
		}
		return nil
	default:
		return appErrors.ErrForbidden
	}
}

// signOffTime is the current time at the microsecond precision of the
// sign_off_timestamp column, so the stored signature can be recomputed.
func (s *TrainingRecordService) signOffTime() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *TrainingRecordService) windowClosed(record *models.TrainingRecord, now time.Time) error {
	return appErrors.Clone(appErrors.ErrSignOffWindowClosed, fmt.Sprintf(
		"This record was signed off %d days ago. Modifications are only allowed within %d days of sign-off.",
		record.DaysSinceSignOff(now), s.config.SignOffGraceDays))
}

// checkReferences verifies the people and catalog entries a record points at.
func (s *TrainingRecordService) checkReferences(ctx context.Context, record *models.TrainingRecord) error {
	student, err := s.users.FindByID(ctx, record.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fieldError("student_id", "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.IsStudent() {
		return fieldError("student_id", "selected user is not a student")
	}
	if record.InstructorID != nil {
		instructor, err := s.users.FindByID(ctx, *record.InstructorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fieldError("instructor_id", "instructor not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
		}
		if !instructor.IsInstructor() {
			return fieldError("instructor_id", "selected user is not an instructor")
		}
	}
	if _, err := s.catalog.FindGlider(ctx, record.GliderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fieldError("glider_id", "glider not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load glider")
	}
	if _, err := s.catalog.FindTopic(ctx, record.TrainingTopicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fieldError("training_topic_id", "training topic not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training topic")
	}
	return nil
}

func (s *TrainingRecordService) notifyRevision(ctx context.Context, record *models.TrainingRecord) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyRevision(ctx, record.StudentID, record.ID)
}

func (s *TrainingRecordService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, dashboardCachePattern)
}

func (s *TrainingRecordService) notFoundOrInternal(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "training record not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func applyRecordUpdate(record *models.TrainingRecord, req dto.UpdateTrainingRecordRequest, date *time.Time, staff bool) {
	if req.InstructorID != nil {
		record.InstructorID = normalizeOptionalID(req.InstructorID)
	}
	if req.TrainingTopicID != nil {
		record.TrainingTopicID = *req.TrainingTopicID
	}
	if req.GliderID != nil {
		record.GliderID = *req.GliderID
	}
	if req.IsSolo != nil {
		record.IsSolo = *req.IsSolo
	}
	if date != nil {
		record.Date = *date
	}
	if req.Field != nil {
		record.Field = strings.TrimSpace(*req.Field)
	}
	if req.FlightDuration != nil {
		record.FlightDuration = *req.FlightDuration
	}
	if req.StudentComments != nil {
		record.StudentComments = *req.StudentComments
	}
	if req.TowHeight != nil {
		record.TowHeight = req.TowHeight
	}
	if staff {
		if req.InstructorComments != nil {
			record.InstructorComments = *req.InstructorComments
		}
		if req.InternalComments != nil {
			record.InternalComments = *req.InternalComments
		}
	}
}

func performancesFromInput(inputs []dto.PerformanceInput, exercises []models.Exercise) ([]models.ExercisePerformance, error) {
	known := make(map[string]struct{}, len(exercises))
	for _, e := range exercises {
		known[e.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(inputs))
	out := make([]models.ExercisePerformance, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := known[in.ExerciseID]; !ok {
			return nil, fieldError("performances", fmt.Sprintf("unknown exercise %s", in.ExerciseID))
		}
		if _, dup := seen[in.ExerciseID]; dup {
			return nil, fieldError("performances", fmt.Sprintf("exercise %s rated twice", in.ExerciseID))
		}
		seen[in.ExerciseID] = struct{}{}
		out = append(out, models.ExercisePerformance{ExerciseID: in.ExerciseID, Performance: in.Performance, Notes: in.Notes})
	}
	return out, nil
}

// withDefaultPerformances adds a not_performed row for every exercise that
// was not submitted.
func withDefaultPerformances(submitted []models.ExercisePerformance, exercises []models.Exercise) []models.ExercisePerformance {
	rated := make(map[string]struct{}, len(submitted))
	for _, p := range submitted {
		rated[p.ExerciseID] = struct{}{}
	}
	out := append([]models.ExercisePerformance(nil), submitted...)
	for _, e := range exercises {
		if _, ok := rated[e.ID]; ok {
			continue
		}
		out = append(out, models.ExercisePerformance{ExerciseID: e.ID, Performance: models.PerformanceNotPerformed})
	}
	return out
}

func normalizeOptionalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fieldError(field, "date must use YYYY-MM-DD")
	}
	return t, nil
}

var durationPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseDurationHHMM converts "HH:MM" into minutes. Minutes must be below 60
// and the total must be positive.
func ParseDurationHHMM(value string) (int, error) {
	match := durationPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, fieldError("duration", "Invalid duration format. Use HH:MM.")
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	if minutes >= 60 {
		return 0, fieldError("duration", "Minutes must be less than 60.")
	}
	total := hours*60 + minutes
	if total <= 0 {
		return 0, fieldError("duration", "Duration must be greater than 0.")
	}
	return total, nil
}
