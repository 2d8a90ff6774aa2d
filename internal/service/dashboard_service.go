package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/cache"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type dashboardRecordReader interface {
	StudentStats(ctx context.Context, studentID string) (models.RecordStats, error)
	InstructorStats(ctx context.Context, instructorID string) (models.InstructorStats, error)
	List(ctx context.Context, filter models.TrainingRecordFilter) ([]models.TrainingRecordView, int, error)
	ListUnsignedForInstructor(ctx context.Context, instructorID string, limit int) ([]models.TrainingRecordView, error)
	RecentStudents(ctx context.Context, instructorID string, since time.Time, limit int) ([]models.UserSummary, error)
}

type pendingBriefingLister interface {
	ListPending(ctx context.Context, limit int) ([]models.GroundBriefingView, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL          time.Duration
	RecentRecords     int
	UnsignedLimit     int
	PendingBriefings  int
	RecentStudentDays int
	RecentStudents    int
}

// DashboardService composes the student and instructor landing pages.
type DashboardService struct {
	records   dashboardRecordReader
	briefings pendingBriefingLister
	users     recordUserReader
	cache     dashboardCache
	logger    *zap.Logger
	now       func() time.Time
	cfg       DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Records   dashboardRecordReader
	Briefings pendingBriefingLister
	Users     recordUserReader
	Cache     dashboardCache
	Logger    *zap.Logger
	Config    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.RecentRecords <= 0 {
		cfg.RecentRecords = 10
	}
	if cfg.UnsignedLimit <= 0 {
		cfg.UnsignedLimit = 20
	}
	if cfg.PendingBriefings <= 0 {
		cfg.PendingBriefings = 10
	}
	if cfg.RecentStudentDays <= 0 {
		cfg.RecentStudentDays = 30
	}
	if cfg.RecentStudents <= 0 {
		cfg.RecentStudents = 10
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		records:   params.Records,
		briefings: params.Briefings,
		users:     params.Users,
		cache:     params.Cache,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
	}
}

// Student returns the student dashboard and whether it came from cache.
func (s *DashboardService) Student(ctx context.Context, actor Actor) (*models.StudentDashboard, bool, error) {
	if !actor.isStudent() {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "student dashboard is only available to students")
	}
	key := cache.Key("dashboard", "student", actor.ID)
	var cached models.StudentDashboard
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	user, err := s.loadUser(ctx, actor.ID)
	if err != nil {
		return nil, false, err
	}
	stats, err := s.records.StudentStats(ctx, actor.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load flight statistics")
	}
	recent, _, err := s.records.List(ctx, models.TrainingRecordFilter{StudentID: actor.ID, Page: 1, PageSize: s.cfg.RecentRecords})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent records")
	}
	for i := range recent {
		recent[i].InternalComments = ""
	}

	summary := &models.StudentDashboard{
		TotalFlights:  stats.Total,
		SoloFlights:   stats.Solo,
		SignedFlights: stats.Signed,
		Pending:       stats.Total - stats.Signed,
		TotalMinutes:  stats.TotalMinutes,
		TotalTime:     models.FormatDuration(stats.TotalMinutes),
		Recent:        recent,
		LicenseStatus: user.LicenseStatus(s.now()),
	}
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

// Instructor returns the instructor dashboard and whether it came from cache.
// Flight minutes count instructional flights only.
func (s *DashboardService) Instructor(ctx context.Context, actor Actor) (*models.InstructorDashboard, bool, error) {
	if !actor.isInstructor() {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "instructor dashboard is only available to instructors")
	}
	key := cache.Key("dashboard", "instructor", actor.ID)
	var cached models.InstructorDashboard
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	user, err := s.loadUser(ctx, actor.ID)
	if err != nil {
		return nil, false, err
	}
	stats, err := s.records.InstructorStats(ctx, actor.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor statistics")
	}
	unsigned, err := s.records.ListUnsignedForInstructor(ctx, actor.ID, s.cfg.UnsignedLimit)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unsigned records")
	}
	briefings, err := s.briefings.ListPending(ctx, s.cfg.PendingBriefings)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending briefings")
	}
	since := s.now().AddDate(0, 0, -s.cfg.RecentStudentDays)
	students, err := s.records.RecentStudents(ctx, actor.ID, since, s.cfg.RecentStudents)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent students")
	}

	summary := &models.InstructorDashboard{
		InstructionalFlights: stats.Instructional,
		SupervisedSolos:      stats.SupervisedSolos,
		InstructionalMinutes: stats.InstructionalMinutes,
		InstructionalTime:    models.FormatDuration(stats.InstructionalMinutes),
		DistinctStudents:     stats.DistinctStudents,
		UnsignedRecords:      unsigned,
		PendingBriefings:     briefings,
		RecentStudents:       students,
		LicenseStatus:        user.LicenseStatus(s.now()),
	}
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

func (s *DashboardService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	s.cache.Set(ctx, key, value, s.cfg.CacheTTL)
}
