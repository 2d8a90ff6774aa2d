package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/export"
)

type exportRecordsStub struct {
	records       map[string][]models.TrainingRecordView
	performances  []models.ExercisePerformanceView
	historyFilter models.FlightHistoryFilter
	paginated     bool
}

func (s *exportRecordsStub) ListForStudent(_ context.Context, studentID string) ([]models.TrainingRecordView, error) {
	return s.records[studentID], nil
}

func (s *exportRecordsStub) ListPerformancesForStudent(context.Context, string) ([]models.ExercisePerformanceView, error) {
	return s.performances, nil
}

func (s *exportRecordsStub) FlightHistory(_ context.Context, filter models.FlightHistoryFilter, paginate bool) ([]models.FlightHistoryEntry, int, error) {
	s.historyFilter = filter
	s.paginated = paginate
	return []models.FlightHistoryEntry{
		{RecordID: "r1", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), StudentName: "Sam Student", FlightDuration: 65, GliderTail: "D-1234", GliderModel: "ASK 21"},
	}, 1, nil
}

type exportBriefingsStub struct{}

func (exportBriefingsStub) ListForStudent(context.Context, string) ([]models.GroundBriefingView, error) {
	signedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return []models.GroundBriefingView{
		{GroundBriefing: models.GroundBriefing{SignedOff: true, SignOffDate: &signedAt}, TopicNumber: 1, TopicName: "Aerodynamics", InstructorName: "Ivan"},
		{TopicNumber: 2, TopicName: "Meteorology"},
	}, nil
}

type exerciseListStub []models.Exercise

func (s exerciseListStub) ListExercises(context.Context) ([]models.Exercise, error) { return s, nil }

type capturingMatrix struct {
	doc export.MatrixDocument
}

func (c *capturingMatrix) Render(doc export.MatrixDocument) ([]byte, error) {
	c.doc = doc
	return []byte("%PDF-matrix"), nil
}

func exportFixture() (*ExportService, *exportRecordsStub, *capturingMatrix) {
	tow := 1500
	signedAt := time.Date(2026, 3, 1, 15, 4, 0, 0, time.UTC)
	records := &exportRecordsStub{records: map[string][]models.TrainingRecordView{
		"ins-9": {{TrainingRecord: models.TrainingRecord{ID: "r9", Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), FlightDuration: 30}}},
		"stu-1": {
			{
				TrainingRecord: models.TrainingRecord{ID: "r1", Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Field: "Hahnweide", FlightDuration: 75, TowHeight: &tow, SignedOff: true, SignOffTimestamp: &signedAt, StudentComments: `said "hello", then left`},
				TopicName:      "Circuits",
				GliderTail:     "D-1234",
				GliderModel:    "ASK 21",
				InstructorName: "Ivan Instructor",
			},
			{
				TrainingRecord: models.TrainingRecord{ID: "r2", Date: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), IsSolo: true, FlightDuration: 20},
				TopicName:      "First solo",
				GliderTail:     "D-5678",
			},
		},
	}}
	users := stubUsers{
		"stu-1": {ID: "stu-1", Username: "sam", FirstName: "Sam", LastName: "Student", UserType: models.UserTypeStudent},
		"stu-2": {ID: "stu-2", Username: "empty", UserType: models.UserTypeStudent},
		"ins-9": {ID: "ins-9", Username: "ivan", UserType: models.UserTypeInstructor},
	}
	matrix := &capturingMatrix{}
	exercises := exerciseListStub{{ID: "e1", Number: "1", Name: "Effects of controls", Category: models.ExerciseCategoryPreSolo}}
	svc := NewExportService(records, exportBriefingsStub{}, exercises, users, ExportConfig{}, nil, zap.NewNop(), nil, nil, matrix)
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc, records, matrix
}

func TestExportStudentCSV(t *testing.T) {
	svc, _, _ := exportFixture()

	file, err := svc.ExportStudent(context.Background(), studentActor, "stu-1", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "sam_training_records.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	require.True(t, bytes.HasPrefix(file.Data, []byte{0xEF, 0xBB, 0xBF}))

	reader := csv.NewReader(bytes.NewReader(file.Data[3:]))
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, recordCSVHeaders, rows[0])
	assert.Equal(t, []string{"1", "2026-03-01", "Circuits", "D-1234 (ASK 21)", "Hahnweide", "Ivan Instructor", "1500 ft", "1:15", "No", `said "hello", then left`, "", "Approved", "2026-03-01 15:04"}, rows[1])
	assert.Equal(t, "Solo Flight", rows[2][5])
	assert.Equal(t, "Not Approved", rows[2][11])
	assert.Contains(t, string(file.Data), `"1","2026-03-01"`)
}

func TestExportStudentPermissionsAndEmpty(t *testing.T) {
	svc, _, _ := exportFixture()

	_, err := svc.ExportStudent(context.Background(), Actor{ID: "stu-2", UserType: models.UserTypeStudent}, "stu-1", "csv")
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = svc.ExportStudent(context.Background(), instructorActor, "stu-2", "csv")
	appErr := assertAppError(t, err, appErrors.ErrNotFound.Code)
	assert.Equal(t, "No training records found", appErr.Message)

	_, err = svc.ExportStudent(context.Background(), adminActor, "missing", "pdf")
	assertAppError(t, err, appErrors.ErrNotFound.Code)

	_, err = svc.ExportStudent(context.Background(), adminActor, "stu-1", "xlsx")
	assertAppError(t, err, appErrors.ErrValidation.Code)
}

func TestExportStudentRequiresStudentAccount(t *testing.T) {
	svc, _, _ := exportFixture()

	_, err := svc.ExportStudent(context.Background(), adminActor, "ins-9", "csv")
	appErr := assertAppError(t, err, appErrors.ErrNotFound.Code)
	assert.Equal(t, "student not found", appErr.Message)
}

func TestFlightHistoryRejectsAdmins(t *testing.T) {
	svc, _, _ := exportFixture()

	_, err := svc.FlightHistory(context.Background(), adminActor, dto.FlightHistoryQuery{})
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = svc.ExportFlightHistory(context.Background(), adminActor, dto.FlightHistoryQuery{})
	assertAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestExportStudentSummaryPDF(t *testing.T) {
	svc, _, _ := exportFixture()

	file, err := svc.ExportStudent(context.Background(), instructorActor, "stu-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "sam_training_summary.pdf", file.Filename)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestExportStudentMatrix(t *testing.T) {
	svc, records, matrix := exportFixture()
	records.performances = []models.ExercisePerformanceView{
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r1", ExerciseID: "e1", Performance: models.PerformanceWell}},
	}

	file, err := svc.ExportStudent(context.Background(), instructorActor, "stu-1", "matrix")
	require.NoError(t, err)
	assert.Equal(t, "sam_exercise_matrix.pdf", file.Filename)
	assert.Equal(t, "Sam Student", matrix.doc.Student)
	require.Len(t, matrix.doc.Pages, 2)
	assert.Equal(t, export.SymbolPerformedWell, matrix.doc.Pages[0].Rows[0].Cells[0])
	assert.Equal(t, MatrixSectionPostSolo, matrix.doc.Pages[1].Section)
}

func TestFlightHistoryDefaultsAndSwap(t *testing.T) {
	svc, records, _ := exportFixture()

	history, err := svc.FlightHistory(context.Background(), instructorActor, dto.FlightHistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", history.From)
	assert.Equal(t, "2026-06-15", history.To)
	assert.Equal(t, 25, records.historyFilter.PageSize)
	assert.True(t, records.paginated)
	assert.Equal(t, "ins-1", records.historyFilter.InstructorID)

	_, err = svc.FlightHistory(context.Background(), instructorActor, dto.FlightHistoryQuery{DateFrom: "2026-05-01", DateTo: "2026-01-01", StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), records.historyFilter.From)
	assert.Equal(t, "stu-1", records.historyFilter.StudentID)

	_, err = svc.FlightHistory(context.Background(), studentActor, dto.FlightHistoryQuery{})
	assertAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestExportFlightHistoryCSV(t *testing.T) {
	svc, records, _ := exportFixture()

	file, err := svc.ExportFlightHistory(context.Background(), instructorActor, dto.FlightHistoryQuery{DateFrom: "2026-01-01", DateTo: "2026-06-01"})
	require.NoError(t, err)
	assert.False(t, records.paginated)
	assert.Equal(t, "flight_history_20260101_20260601.csv", file.Filename)

	rows, err := csv.NewReader(bytes.NewReader(file.Data[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2026-03-02", "Sam Student", "Not Provided", "1:05", "D-1234 (ASK 21)"}, rows[1])
}
