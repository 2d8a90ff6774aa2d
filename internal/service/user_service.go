package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id string, apply func(current *models.User) error) (*models.User, *models.User, error)
}

type historyRecordReader interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.TrainingRecordView, error)
	ListPerformancesForStudent(ctx context.Context, studentID string) ([]models.ExercisePerformanceView, error)
}

type historyBriefingReader interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.GroundBriefingView, error)
}

type briefingTopicLister interface {
	ListBriefingTopics(ctx context.Context) ([]models.GroundBriefingTopic, error)
}

// CompletedExercise is an exercise flown on at least one signed record.
type CompletedExercise struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name"`
}

// StudentHistory is what instructors see when they look a student up.
type StudentHistory struct {
	Student                 *models.User                `json:"student"`
	LicenseStatus           string                      `json:"license_status,omitempty"`
	Records                 []models.TrainingRecordView `json:"records"`
	TotalFlights            int                         `json:"total_flights"`
	SoloFlights             int                         `json:"solo_flights"`
	SignedOff               int                         `json:"signed_off"`
	TotalFlightTime         string                      `json:"total_flight_time"`
	Instructors             []string                    `json:"instructors"`
	PreSoloExercises        []CompletedExercise         `json:"pre_solo_exercises"`
	PostSoloExercises       []CompletedExercise         `json:"post_solo_exercises"`
	GroundBriefingsOverview *models.BriefingOverview    `json:"ground_briefings"`
}

// UserServiceParams groups the collaborators of UserService.
type UserServiceParams struct {
	Users     userRepository
	Records   historyRecordReader
	Briefings historyBriefingReader
	Topics    briefingTopicLister
	Validator *validator.Validate
	Logger    *zap.Logger
}

// UserService handles member management and student lookups.
type UserService struct {
	repo      userRepository
	records   historyRecordReader
	briefings historyBriefingReader
	topics    briefingTopicLister
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(params UserServiceParams) *UserService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{
		repo:      params.Users,
		records:   params.Records,
		briefings: params.Briefings,
		topics:    params.Topics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, query dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationError(err, "invalid user filter")
	}
	filter := models.UserFilter{
		Search:    strings.TrimSpace(query.Search),
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if query.UserType != "" {
		userType := models.UserType(query.UserType)
		filter.UserType = &userType
	}
	return s.list(ctx, filter)
}

// SearchStudents is the instructor lookup over active students by name,
// username or licence number.
func (s *UserService) SearchStudents(ctx context.Context, actor Actor, q string, page int) ([]models.User, *models.Pagination, error) {
	if actor.isStudent() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "Only instructors can look up students")
	}
	studentType := models.UserTypeStudent
	active := true
	return s.list(ctx, models.UserFilter{
		UserType: &studentType,
		Active:   &active,
		Search:   strings.TrimSpace(q),
		Page:     page,
		SortBy:   "last_name",
	})
}

func (s *UserService) list(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a member. Usernames are unique regardless of case.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create user payload")
	}

	username := strings.TrimSpace(req.Username)
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "username already exists"), map[string]string{"username": "already taken"})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	mustChange := true
	if req.PasswordChangeRequired != nil {
		mustChange = *req.PasswordChangeRequired
	}
	user := &models.User{
		ID:                      uuid.NewString(),
		Username:                username,
		Email:                   strings.TrimSpace(req.Email),
		FirstName:               strings.TrimSpace(req.FirstName),
		LastName:                strings.TrimSpace(req.LastName),
		PasswordHash:            string(passwordHash),
		UserType:                models.UserType(req.UserType),
		Active:                  true,
		StudentLicenseNumber:    strings.TrimSpace(req.StudentLicenseNumber),
		InstructorLicenseNumber: strings.TrimSpace(req.InstructorLicenseNumber),
		PasswordChangeRequired:  mustChange,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	auditCreate(ctx, models.TableUsers, user.ID, user)
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("user_type", string(user.UserType)))
	return user, nil
}

// CreateAdmin registers an administrator who keeps the chosen password.
func (s *UserService) CreateAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	keep := false
	return s.Create(ctx, dto.CreateUserRequest{
		Username:               username,
		Email:                  email,
		Password:               password,
		UserType:               string(models.UserTypeAdmin),
		PasswordChangeRequired: &keep,
	})
}

// Update changes a member's role or active flag.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, req dto.UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update payload")
	}
	if id == actor.ID && req.Active != nil && !*req.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "administrators cannot deactivate themselves")
	}

	before, after, err := s.repo.UpdateProfile(ctx, id, func(current *models.User) error {
		if req.UserType != nil {
			current.UserType = models.UserType(*req.UserType)
		}
		if req.Active != nil {
			current.Active = *req.Active
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	auditUpdate(ctx, models.TableUsers, id, before, after)
	return after, nil
}

// StudentHistory gathers a student's flights, completed exercises and
// ground briefing progress. Students may only open their own.
func (s *UserService) StudentHistory(ctx context.Context, actor Actor, studentID string) (*StudentHistory, error) {
	if actor.isStudent() && actor.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only instructors can view student histories")
	}
	student, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	records, err := s.records.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training records")
	}
	performances, err := s.records.ListPerformancesForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercise performances")
	}
	topics, err := s.topics.ListBriefingTopics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load briefing topics")
	}
	briefings, err := s.briefings.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ground briefings")
	}

	history := &StudentHistory{
		Student:                 student,
		LicenseStatus:           student.LicenseStatus(s.now()),
		Records:                 records,
		TotalFlights:            len(records),
		Instructors:             []string{},
		PreSoloExercises:        []CompletedExercise{},
		PostSoloExercises:       []CompletedExercise{},
		GroundBriefingsOverview: BuildBriefingOverview(studentID, topics, briefings),
	}
	signed := make(map[string]bool, len(records))
	instructors := map[string]struct{}{}
	minutes := 0
	for _, r := range records {
		if r.IsSolo {
			history.SoloFlights++
		}
		if r.SignedOff {
			history.SignedOff++
			signed[r.ID] = true
		}
		minutes += r.FlightDuration
		if r.InstructorName != "" {
			instructors[r.InstructorName] = struct{}{}
		}
	}
	history.TotalFlightTime = models.FormatDuration(minutes)
	for name := range instructors {
		history.Instructors = append(history.Instructors, name)
	}
	sort.Strings(history.Instructors)

	seen := map[string]struct{}{}
	var completed []models.Exercise
	categories := map[string]models.ExerciseCategory{}
	for _, p := range performances {
		if !signed[p.TrainingRecordID] || !p.Performance.Performed() {
			continue
		}
		if _, ok := seen[p.ExerciseID]; ok {
			continue
		}
		seen[p.ExerciseID] = struct{}{}
		completed = append(completed, models.Exercise{ID: p.ExerciseID, Number: p.ExerciseNumber, Name: p.ExerciseName})
		categories[p.ExerciseID] = p.ExerciseCategory
	}
	SortExercises(completed)
	for _, e := range completed {
		item := CompletedExercise{ID: e.ID, Number: e.Number, Name: e.Name}
		if categories[e.ID] == models.ExerciseCategoryPostSolo {
			history.PostSoloExercises = append(history.PostSoloExercises, item)
		} else {
			history.PreSoloExercises = append(history.PreSoloExercises, item)
		}
	}
	return history, nil
}
