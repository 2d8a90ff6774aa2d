package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type stubRecordRepo struct {
	records        map[string]*models.TrainingRecord
	performances   map[string][]models.ExercisePerformance
	signOffErr     error
	signOffCalls   int
	concurrentSign bool
}

func newStubRecordRepo(records ...*models.TrainingRecord) *stubRecordRepo {
	repo := &stubRecordRepo{records: map[string]*models.TrainingRecord{}, performances: map[string][]models.ExercisePerformance{}}
	for _, r := range records {
		repo.records[r.ID] = r
	}
	return repo
}

func (s *stubRecordRepo) Create(_ context.Context, record *models.TrainingRecord, performances []models.ExercisePerformance) error {
	record.ID = "rec-new"
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	copied := *record
	s.records[record.ID] = &copied
	s.performances[record.ID] = performances
	return nil
}

func (s *stubRecordRepo) Update(_ context.Context, id string, apply func(*models.TrainingRecord) error, performances []models.ExercisePerformance) (*models.TrainingRecord, *models.TrainingRecord, error) {
	stored, ok := s.records[id]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	before := *stored
	current := *stored
	if err := apply(&current); err != nil {
		return nil, nil, err
	}
	current.UpdatedAt = time.Now()
	s.records[id] = &current
	s.performances[id] = append(s.performances[id], performances...)
	after := current
	return &before, &after, nil
}

func (s *stubRecordRepo) SignOff(_ context.Context, id string, signedAt time.Time, signature string, expected time.Time) error {
	s.signOffCalls++
	if s.signOffErr != nil {
		return s.signOffErr
	}
	r := s.records[id]
	if s.concurrentSign && r != nil {
		r.SignedOff = true
		return sql.ErrNoRows
	}
	if r == nil || r.SignedOff || !r.UpdatedAt.Equal(expected) {
		return sql.ErrNoRows
	}
	r.SignedOff = true
	r.SignOffTimestamp = &signedAt
	r.SignatureHash = signature
	return nil
}

func (s *stubRecordRepo) FindByID(_ context.Context, id string) (*models.TrainingRecord, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (s *stubRecordRepo) FindView(ctx context.Context, id string) (*models.TrainingRecordView, error) {
	r, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.TrainingRecordView{TrainingRecord: *r}, nil
}

func (s *stubRecordRepo) List(_ context.Context, filter models.TrainingRecordFilter) ([]models.TrainingRecordView, int, error) {
	var out []models.TrainingRecordView
	for _, r := range s.records {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		out = append(out, models.TrainingRecordView{TrainingRecord: *r})
	}
	return out, len(out), nil
}

func (s *stubRecordRepo) FlightNumber(context.Context, models.TrainingRecord) (int, error) {
	return 1, nil
}

func (s *stubRecordRepo) ListPerformances(_ context.Context, id string) ([]models.ExercisePerformanceView, error) {
	var out []models.ExercisePerformanceView
	for _, p := range s.performances[id] {
		out = append(out, models.ExercisePerformanceView{ExercisePerformance: p})
	}
	return out, nil
}

type stubCatalog struct {
	exercises []models.Exercise
}

func (s stubCatalog) ListExercises(context.Context) ([]models.Exercise, error) {
	return s.exercises, nil
}

func (s stubCatalog) FindGlider(_ context.Context, id string) (*models.Glider, error) {
	if id != "glider-1" {
		return nil, sql.ErrNoRows
	}
	return &models.Glider{ID: id, TailNumber: "D-1234", Model: "ASK 21"}, nil
}

func (s stubCatalog) FindTopic(_ context.Context, id string) (*models.TrainingTopic, error) {
	if id != "topic-1" {
		return nil, sql.ErrNoRows
	}
	return &models.TrainingTopic{ID: id, Name: "Circuits"}, nil
}

type stubUsers map[string]*models.User

func (s stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type recordingNotifier struct {
	calls []string
}

func (n *recordingNotifier) NotifyRevision(_ context.Context, studentID, recordID string) {
	n.calls = append(n.calls, studentID+":"+recordID)
}

type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, pattern string) {
	r.patterns = append(r.patterns, pattern)
}

var (
	studentActor    = Actor{ID: "stu-1", UserType: models.UserTypeStudent}
	instructorActor = Actor{ID: "ins-1", UserType: models.UserTypeInstructor}
	adminActor      = Actor{ID: "adm-1", UserType: models.UserTypeAdmin}
)

func strPtr(s string) *string { return &s }

func testUsers() stubUsers {
	return stubUsers{
		"stu-1": {ID: "stu-1", Username: "stu", UserType: models.UserTypeStudent},
		"stu-2": {ID: "stu-2", Username: "other", UserType: models.UserTypeStudent},
		"ins-1": {ID: "ins-1", Username: "ins", UserType: models.UserTypeInstructor},
		"ins-2": {ID: "ins-2", Username: "ins2", UserType: models.UserTypeInstructor},
	}
}

func baseRecord() *models.TrainingRecord {
	return &models.TrainingRecord{
		ID:              "rec-1",
		StudentID:       "stu-1",
		InstructorID:    strPtr("ins-1"),
		TrainingTopicID: "topic-1",
		GliderID:        "glider-1",
		Date:            time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		FlightDuration:  30,
		UpdatedAt:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

type recordFixture struct {
	svc      *TrainingRecordService
	repo     *stubRecordRepo
	notifier *recordingNotifier
	cache    *recordingInvalidator
	now      time.Time
}

func newRecordFixture(records ...*models.TrainingRecord) recordFixture {
	repo := newStubRecordRepo(records...)
	notifier := &recordingNotifier{}
	invalidator := &recordingInvalidator{}
	catalog := stubCatalog{exercises: []models.Exercise{{ID: "ex-1", Number: "1"}, {ID: "ex-2", Number: "2"}}}
	svc := NewTrainingRecordService(repo, catalog, testUsers(), notifier, invalidator, nil, nil, zap.NewNop(), TrainingRecordConfig{SignOffGraceDays: 7})
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return recordFixture{svc: svc, repo: repo, notifier: notifier, cache: invalidator, now: now}
}

func assertAppError(t *testing.T, err error, code string) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok, "expected app error, got %T", err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestTrainingRecordCreateByStudentFillsDefaults(t *testing.T) {
	f := newRecordFixture()
	ctx := WithAuditCollector(context.Background(), NewAuditCollector())

	detail, err := f.svc.Create(ctx, studentActor, dto.CreateTrainingRecordRequest{
		StudentID:        "stu-2",
		TrainingTopicID:  "topic-1",
		GliderID:         "glider-1",
		Date:             "2026-05-09",
		FlightDuration:   25,
		InternalComments: "ignored",
		Performances: []dto.PerformanceInput{
			{ExerciseID: "ex-1", Performance: models.PerformanceWell},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "stu-1", detail.StudentID)
	assert.Empty(t, detail.InternalComments)
	require.Len(t, f.repo.performances["rec-new"], 2)
	assert.Equal(t, models.PerformanceNotPerformed, f.repo.performances["rec-new"][1].Performance)
	assert.Equal(t, []string{"gliding:dashboard:*"}, f.cache.patterns)

	entries := AuditCollectorFromContext(ctx).Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, models.TableTrainingRecords, entries[0].TableName)
}

func TestTrainingRecordCreateByInstructor(t *testing.T) {
	f := newRecordFixture()

	_, err := f.svc.Create(context.Background(), instructorActor, dto.CreateTrainingRecordRequest{
		TrainingTopicID: "topic-1", GliderID: "glider-1", Date: "2026-05-09", FlightDuration: 25,
	})
	appErr := assertAppError(t, err, appErrors.ErrValidation.Code)
	assert.Contains(t, appErr.Details, "student_id")

	_, err = f.svc.Create(context.Background(), instructorActor, dto.CreateTrainingRecordRequest{
		StudentID: "ins-2", TrainingTopicID: "topic-1", GliderID: "glider-1", Date: "2026-05-09", FlightDuration: 25,
	})
	assertAppError(t, err, appErrors.ErrValidation.Code)

	detail, err := f.svc.Create(context.Background(), instructorActor, dto.CreateTrainingRecordRequest{
		StudentID: "stu-1", TrainingTopicID: "topic-1", GliderID: "glider-1", Date: "2026-05-09", FlightDuration: 25,
		InstructorComments: "watch the speed",
	})
	require.NoError(t, err)
	require.NotNil(t, detail.InstructorID)
	assert.Equal(t, "ins-1", *detail.InstructorID)
	assert.Equal(t, []string{"stu-1:rec-new"}, f.notifier.calls)
}

func TestTrainingRecordCreateRejectsUnknownExercise(t *testing.T) {
	f := newRecordFixture()
	_, err := f.svc.Create(context.Background(), studentActor, dto.CreateTrainingRecordRequest{
		TrainingTopicID: "topic-1", GliderID: "glider-1", Date: "2026-05-09", FlightDuration: 25,
		Performances: []dto.PerformanceInput{{ExerciseID: "missing", Performance: models.PerformanceWell}},
	})
	assertAppError(t, err, appErrors.ErrValidation.Code)
}

func TestTrainingRecordUpdatePermissions(t *testing.T) {
	signedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	signed := baseRecord()
	signed.ID = "rec-signed"
	signed.SignedOff = true
	signed.SignOffTimestamp = &signedAt

	other := baseRecord()
	other.ID = "rec-other"
	other.StudentID = "stu-2"
	other.InstructorID = strPtr("ins-2")

	f := newRecordFixture(baseRecord(), signed, other)
	field := "Hahnweide"
	req := dto.UpdateTrainingRecordRequest{Field: &field}

	_, err := f.svc.Update(context.Background(), studentActor, "rec-other", req)
	appErr := assertAppError(t, err, appErrors.ErrForbidden.Code)
	assert.Equal(t, "You can only edit your own training records.", appErr.Message)

	_, err = f.svc.Update(context.Background(), studentActor, "rec-signed", req)
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = f.svc.Update(context.Background(), instructorActor, "rec-other", req)
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = f.svc.Update(context.Background(), instructorActor, "rec-signed", req)
	appErr = assertAppError(t, err, appErrors.ErrSignOffWindowClosed.Code)
	assert.Equal(t, "This record was signed off 8 days ago. Modifications are only allowed within 7 days of sign-off.", appErr.Message)

	detail, err := f.svc.Update(context.Background(), adminActor, "rec-signed", req)
	require.NoError(t, err)
	assert.Equal(t, field, detail.Field)

	_, err = f.svc.Update(context.Background(), adminActor, "missing", req)
	assertAppError(t, err, appErrors.ErrNotFound.Code)
}

func TestTrainingRecordUpdateRehashesSignedRecordInsideWindow(t *testing.T) {
	signedAt := time.Date(2026, 5, 8, 12, 0, 0, 0, time.UTC)
	record := baseRecord()
	record.SignedOff = true
	record.SignOffTimestamp = &signedAt
	record.SignatureHash = record.ComputeSignature(signedAt)
	f := newRecordFixture(record)

	duration := 45
	detail, err := f.svc.Update(context.Background(), instructorActor, "rec-1", dto.UpdateTrainingRecordRequest{FlightDuration: &duration})
	require.NoError(t, err)
	assert.Equal(t, 45, detail.FlightDuration)
	assert.Equal(t, signedAt, *detail.SignOffTimestamp)
	assert.Equal(t, detail.TrainingRecord.ComputeSignature(signedAt), detail.SignatureHash)
	assert.NotEqual(t, record.SignatureHash, detail.SignatureHash)
}

func TestTrainingRecordStudentCannotSetInstructorComments(t *testing.T) {
	f := newRecordFixture(baseRecord())
	comment := "self praise"
	detail, err := f.svc.Update(context.Background(), studentActor, "rec-1", dto.UpdateTrainingRecordRequest{InstructorComments: &comment})
	require.NoError(t, err)
	assert.Empty(t, detail.InstructorComments)
	assert.Empty(t, f.notifier.calls)
}

func TestTrainingRecordInstructorCommentTriggersRevision(t *testing.T) {
	f := newRecordFixture(baseRecord())
	comment := "please rewrite the approach notes"
	_, err := f.svc.Update(context.Background(), instructorActor, "rec-1", dto.UpdateTrainingRecordRequest{InstructorComments: &comment})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1:rec-1"}, f.notifier.calls)

	_, err = f.svc.Update(context.Background(), instructorActor, "rec-1", dto.UpdateTrainingRecordRequest{InstructorComments: &comment})
	require.NoError(t, err)
	assert.Len(t, f.notifier.calls, 1)
}

func TestTrainingRecordSignOff(t *testing.T) {
	f := newRecordFixture(baseRecord())

	_, err := f.svc.SignOff(context.Background(), Actor{ID: "ins-2", UserType: models.UserTypeInstructor}, "rec-1")
	appErr := assertAppError(t, err, appErrors.ErrForbidden.Code)
	assert.Equal(t, "You are not authorized to sign off this record.", appErr.Message)

	detail, err := f.svc.SignOff(context.Background(), instructorActor, "rec-1")
	require.NoError(t, err)
	assert.True(t, detail.SignedOff)
	assert.Equal(t, detail.TrainingRecord.ComputeSignature(f.now), detail.SignatureHash)

	_, err = f.svc.SignOff(context.Background(), instructorActor, "rec-1")
	assertAppError(t, err, appErrors.ErrAlreadySigned.Code)
	assert.Equal(t, 1, f.repo.signOffCalls)
}

func TestTrainingRecordSignOffStoresMicrosecondTimestamp(t *testing.T) {
	f := newRecordFixture(baseRecord())
	f.svc.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 123456789, time.UTC) }

	detail, err := f.svc.SignOff(context.Background(), instructorActor, "rec-1")
	require.NoError(t, err)

	stored := f.repo.records["rec-1"]
	require.NotNil(t, stored.SignOffTimestamp)
	assert.Equal(t, time.Date(2026, 5, 10, 12, 0, 0, 123456000, time.UTC), *stored.SignOffTimestamp)
	assert.Equal(t, stored.ComputeSignature(*stored.SignOffTimestamp), stored.SignatureHash)
	assert.Equal(t, stored.SignatureHash, detail.SignatureHash)
}

func TestTrainingRecordSignOffLosesRace(t *testing.T) {
	f := newRecordFixture(baseRecord())
	f.repo.signOffErr = sql.ErrNoRows

	_, err := f.svc.SignOff(context.Background(), instructorActor, "rec-1")
	assertAppError(t, err, appErrors.ErrConflict.Code)

	f.repo.signOffErr = nil
	f.repo.concurrentSign = true
	_, err = f.svc.SignOff(context.Background(), instructorActor, "rec-1")
	assertAppError(t, err, appErrors.ErrAlreadySigned.Code)
}

func TestTrainingRecordReviewAndSignOff(t *testing.T) {
	record := baseRecord()
	record.IsSolo = true
	f := newRecordFixture(record)

	req := dto.SignOffFormRequest{
		Date: "2026-05-02", GliderID: "glider-1", TrainingTopicID: "topic-1",
		Duration: "1:15", InstructorComments: "good",
	}
	detail, err := f.svc.ReviewAndSignOff(context.Background(), instructorActor, "rec-1", req)
	require.NoError(t, err)
	assert.True(t, detail.SignedOff)
	assert.True(t, detail.IsSolo)
	assert.Equal(t, 75, detail.FlightDuration)
	assert.Equal(t, f.now, *detail.SignOffTimestamp)

	f.svc.now = func() time.Time { return f.now.Add(24 * time.Hour) }
	req.Duration = "0:50"
	detail, err = f.svc.ReviewAndSignOff(context.Background(), instructorActor, "rec-1", req)
	require.NoError(t, err)
	assert.Equal(t, f.now, *detail.SignOffTimestamp)
	assert.Equal(t, detail.TrainingRecord.ComputeSignature(f.now), detail.SignatureHash)

	_, err = f.svc.ReviewAndSignOff(context.Background(), studentActor, "rec-1", req)
	assertAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestParseDurationHHMM(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		message string
	}{
		{in: "1:30", want: 90},
		{in: "00:05", want: 5},
		{in: "1:60", message: "Minutes must be less than 60."},
		{in: "0:00", message: "Duration must be greater than 0."},
		{in: "90", message: "Invalid duration format. Use HH:MM."},
	}
	for _, tc := range cases {
		got, err := ParseDurationHHMM(tc.in)
		if tc.message != "" {
			appErr := assertAppError(t, err, appErrors.ErrValidation.Code)
			assert.Equal(t, tc.message, appErr.Message, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestTrainingRecordStudentListAndGetScope(t *testing.T) {
	other := baseRecord()
	other.ID = "rec-other"
	other.StudentID = "stu-2"
	f := newRecordFixture(baseRecord(), other)

	records, page, err := f.svc.List(context.Background(), studentActor, dto.TrainingRecordQuery{StudentID: "stu-2"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stu-1", records[0].StudentID)
	assert.Equal(t, 20, page.PageSize)

	_, err = f.svc.Get(context.Background(), studentActor, "rec-other")
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, _, err = f.svc.List(context.Background(), adminActor, dto.TrainingRecordQuery{DateFrom: "05/01/2026"})
	assertAppError(t, err, appErrors.ErrValidation.Code)
}
