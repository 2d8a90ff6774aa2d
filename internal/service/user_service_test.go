package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	listFilter models.UserFilter
}

func (m *mockUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.listFilter = filter
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id string, apply func(*models.User) error) (*models.User, *models.User, error) {
	current, ok := m.users[id]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	before, after := *current, *current
	if err := apply(&after); err != nil {
		return nil, nil, err
	}
	m.users[id] = &after
	return &before, &after, nil
}

type historyBriefingsStub []models.GroundBriefingView

func (s historyBriefingsStub) ListForStudent(context.Context, string) ([]models.GroundBriefingView, error) {
	return s, nil
}

func newUserFixture() (*UserService, *mockUserRepo, *exportRecordsStub) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", Username: "sam", FirstName: "Sam", UserType: models.UserTypeStudent, Active: true},
		"ins-1": {ID: "ins-1", Username: "ina", UserType: models.UserTypeInstructor, Active: true},
	}}
	records := &exportRecordsStub{records: map[string][]models.TrainingRecordView{}}
	briefings := historyBriefingsStub{{GroundBriefing: models.GroundBriefing{ID: "gb1", StudentID: "stu-1", TopicID: "t1", SignedOff: true}}}
	topics := stubBriefingTopics{{ID: "t1", Number: 1, Name: "Aerodynamics"}, {ID: "t2", Number: 2, Name: "Meteorology"}}
	svc := NewUserService(UserServiceParams{Users: repo, Records: records, Briefings: briefings, Topics: topics, Logger: zap.NewNop()})
	return svc, repo, records
}

func TestUserServiceCreateHashesAndRejectsDuplicates(t *testing.T) {
	svc, repo, _ := newUserFixture()
	collector := NewAuditCollector()
	ctx := WithAuditCollector(context.Background(), collector)

	user, err := svc.Create(ctx, dto.CreateUserRequest{Username: "newbie", Email: "new@example.com", Password: "longenough", UserType: "student"})
	require.NoError(t, err)
	assert.True(t, user.PasswordChangeRequired)
	assert.True(t, user.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[user.ID].PasswordHash), []byte("longenough")))
	require.Len(t, collector.Entries(), 1)
	assert.NotContains(t, collector.Entries()[0].NewValues, "password_hash")

	_, err = svc.Create(ctx, dto.CreateUserRequest{Username: "SAM", Password: "longenough", UserType: "student"})
	assertAppError(t, err, appErrors.ErrConflict.Code)

	_, err = svc.Create(ctx, dto.CreateUserRequest{Username: "x", Password: "short", UserType: "pilot"})
	assertAppError(t, err, appErrors.ErrValidation.Code)
}

func TestUserServiceCreateAdminKeepsPassword(t *testing.T) {
	svc, _, _ := newUserFixture()

	admin, err := svc.CreateAdmin(context.Background(), "root", "root@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeAdmin, admin.UserType)
	assert.False(t, admin.PasswordChangeRequired)
}

func TestUserServiceUpdate(t *testing.T) {
	svc, repo, _ := newUserFixture()
	inactive := false
	role := "instructor"

	user, err := svc.Update(context.Background(), adminActor, "stu-1", dto.UpdateUserRequest{UserType: &role, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeInstructor, user.UserType)
	assert.False(t, repo.users["stu-1"].Active)

	_, err = svc.Update(context.Background(), adminActor, adminActor.ID, dto.UpdateUserRequest{Active: &inactive})
	assertAppError(t, err, appErrors.ErrConflict.Code)

	_, err = svc.Update(context.Background(), adminActor, "missing", dto.UpdateUserRequest{Active: &inactive})
	assertAppError(t, err, appErrors.ErrNotFound.Code)
}

func TestUserServiceSearchStudents(t *testing.T) {
	svc, repo, _ := newUserFixture()

	_, pagination, err := svc.SearchStudents(context.Background(), instructorActor, "  sam ", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	require.NotNil(t, repo.listFilter.UserType)
	assert.Equal(t, models.UserTypeStudent, *repo.listFilter.UserType)
	assert.Equal(t, "sam", repo.listFilter.Search)

	_, _, err = svc.SearchStudents(context.Background(), studentActor, "sam", 1)
	assertAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestUserServiceStudentHistory(t *testing.T) {
	svc, _, records := newUserFixture()
	instructorID := "ins-1"
	records.records["stu-1"] = []models.TrainingRecordView{
		{TrainingRecord: models.TrainingRecord{ID: "r1", StudentID: "stu-1", InstructorID: &instructorID, FlightDuration: 45, SignedOff: true}, InstructorName: "Ina Instructor"},
		{TrainingRecord: models.TrainingRecord{ID: "r2", StudentID: "stu-1", IsSolo: true, FlightDuration: 30}},
	}
	records.performances = []models.ExercisePerformanceView{
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r1", ExerciseID: "e10", Performance: models.PerformanceWell}, ExerciseNumber: "10", ExerciseCategory: models.ExerciseCategoryPostSolo},
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r1", ExerciseID: "e2", Performance: models.PerformanceBadly}, ExerciseNumber: "2", ExerciseCategory: models.ExerciseCategoryPreSolo},
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r1", ExerciseID: "e3", Performance: models.PerformanceNotPerformed}, ExerciseNumber: "3", ExerciseCategory: models.ExerciseCategoryPreSolo},
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r2", ExerciseID: "e4", Performance: models.PerformanceWell}, ExerciseNumber: "4", ExerciseCategory: models.ExerciseCategoryPreSolo},
	}

	history, err := svc.StudentHistory(context.Background(), instructorActor, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, history.TotalFlights)
	assert.Equal(t, 1, history.SoloFlights)
	assert.Equal(t, 1, history.SignedOff)
	assert.Equal(t, "1:15", history.TotalFlightTime)
	assert.Equal(t, []string{"Ina Instructor"}, history.Instructors)
	require.Len(t, history.PreSoloExercises, 1)
	assert.Equal(t, "e2", history.PreSoloExercises[0].ID)
	require.Len(t, history.PostSoloExercises, 1)
	assert.Equal(t, 1, history.GroundBriefingsOverview.Completed)
	assert.Equal(t, 1, history.GroundBriefingsOverview.NotStarted)

	_, err = svc.StudentHistory(context.Background(), Actor{ID: "stu-2", UserType: models.UserTypeStudent}, "stu-1")
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = svc.StudentHistory(context.Background(), instructorActor, "ins-1")
	assertAppError(t, err, appErrors.ErrNotFound.Code)
}
