package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type dashboardRecordsStub struct {
	studentCalls    int
	instructorCalls int
	listFilter      models.TrainingRecordFilter
	recentSince     time.Time
}

func (s *dashboardRecordsStub) StudentStats(context.Context, string) (models.RecordStats, error) {
	s.studentCalls++
	return models.RecordStats{Total: 12, Solo: 3, Signed: 10, TotalMinutes: 425}, nil
}

func (s *dashboardRecordsStub) InstructorStats(context.Context, string) (models.InstructorStats, error) {
	s.instructorCalls++
	return models.InstructorStats{Instructional: 40, SupervisedSolos: 6, InstructionalMinutes: 1230, DistinctStudents: 7}, nil
}

func (s *dashboardRecordsStub) List(_ context.Context, filter models.TrainingRecordFilter) ([]models.TrainingRecordView, int, error) {
	s.listFilter = filter
	return []models.TrainingRecordView{{TrainingRecord: models.TrainingRecord{ID: "r1", InternalComments: "staff only"}}}, 1, nil
}

func (s *dashboardRecordsStub) ListUnsignedForInstructor(context.Context, string, int) ([]models.TrainingRecordView, error) {
	return []models.TrainingRecordView{{TrainingRecord: models.TrainingRecord{ID: "r2"}}}, nil
}

func (s *dashboardRecordsStub) RecentStudents(_ context.Context, _ string, since time.Time, _ int) ([]models.UserSummary, error) {
	s.recentSince = since
	return []models.UserSummary{{ID: "stu-1", Username: "sam", FullName: "Sam Student"}}, nil
}

type pendingBriefingsStub struct{}

func (pendingBriefingsStub) ListPending(context.Context, int) ([]models.GroundBriefingView, error) {
	return []models.GroundBriefingView{{TopicName: "Meteorology"}}, nil
}

func newDashboardFixture() (*DashboardService, *dashboardRecordsStub) {
	records := &dashboardRecordsStub{}
	expiring := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)
	users := stubUsers{
		"stu-1": {ID: "stu-1", UserType: models.UserTypeStudent, LicenseExpirationDate: &expiring},
		"ins-1": {ID: "ins-1", UserType: models.UserTypeInstructor},
	}
	cacheSvc := NewCacheService(newMemoryCache(), nil, time.Minute, zap.NewNop())
	svc := NewDashboardService(DashboardServiceParams{
		Records:   records,
		Briefings: pendingBriefingsStub{},
		Users:     users,
		Cache:     cacheSvc,
		Logger:    zap.NewNop(),
	})
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, records
}

func TestDashboardStudentComposesAndCaches(t *testing.T) {
	svc, records := newDashboardFixture()
	ctx := context.Background()

	summary, cached, err := svc.Student(ctx, studentActor)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, summary.Pending)
	assert.Equal(t, "7:05", summary.TotalTime)
	assert.Equal(t, models.LicenseStatusExpiring, summary.LicenseStatus)
	assert.Equal(t, 10, records.listFilter.PageSize)
	require.Len(t, summary.Recent, 1)
	assert.Empty(t, summary.Recent[0].InternalComments)

	again, cached, err := svc.Student(ctx, studentActor)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, summary.TotalFlights, again.TotalFlights)
	assert.Equal(t, 1, records.studentCalls)
}

func TestDashboardInstructor(t *testing.T) {
	svc, records := newDashboardFixture()

	summary, cached, err := svc.Instructor(context.Background(), instructorActor)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 40, summary.InstructionalFlights)
	assert.Equal(t, 6, summary.SupervisedSolos)
	assert.Equal(t, "20:30", summary.InstructionalTime)
	assert.Len(t, summary.UnsignedRecords, 1)
	assert.Len(t, summary.PendingBriefings, 1)
	assert.Len(t, summary.RecentStudents, 1)
	assert.Equal(t, time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC), records.recentSince)
}

func TestDashboardRoleChecks(t *testing.T) {
	svc, _ := newDashboardFixture()

	_, _, err := svc.Student(context.Background(), instructorActor)
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, _, err = svc.Instructor(context.Background(), studentActor)
	assertAppError(t, err, appErrors.ErrForbidden.Code)
}
