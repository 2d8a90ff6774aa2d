package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/internal/service"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type fakeExportService struct {
	studentID string
	format    string
	query     dto.FlightHistoryQuery
	err       error
}

func (f *fakeExportService) ExportStudent(_ context.Context, _ service.Actor, studentID, format string) (*service.ExportFile, error) {
	f.studentID, f.format = studentID, format
	if f.err != nil {
		return nil, f.err
	}
	return &service.ExportFile{Filename: "logbook_jdoe.csv", ContentType: "text/csv", Data: []byte("Flight Number,Date\n1,2026-05-01\n")}, nil
}

func (f *fakeExportService) FlightHistory(_ context.Context, _ service.Actor, query dto.FlightHistoryQuery) (*service.FlightHistory, error) {
	f.query = query
	return &service.FlightHistory{
		Entries:    []models.FlightHistoryEntry{{StudentName: "Jane Doe"}},
		From:       "2026-04-01",
		To:         "2026-05-01",
		Pagination: &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1},
	}, f.err
}

func (f *fakeExportService) ExportFlightHistory(_ context.Context, _ service.Actor, query dto.FlightHistoryQuery) (*service.ExportFile, error) {
	f.query = query
	return &service.ExportFile{Filename: "flight_history.csv", ContentType: "text/csv", Data: []byte("Date\n")}, f.err
}

func TestExportHandlerStudentAttachment(t *testing.T) {
	svc := &fakeExportService{}
	handler := NewExportHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/export/stu-1/csv", nil, instructorClaims())
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}, {Key: "format", Value: "csv"}}

	handler.Student(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-1", svc.studentID)
	assert.Equal(t, "csv", svc.format)
	assert.Equal(t, `attachment; filename="logbook_jdoe.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Body.String(), "2026-05-01")
}

func TestExportHandlerNoRecords(t *testing.T) {
	handler := NewExportHandler(&fakeExportService{err: appErrors.Clone(appErrors.ErrNotFound, "No training records found")})
	c, rec := newTestContext(http.MethodGet, "/export/stu-1/pdf", nil, studentClaims())
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}, {Key: "format", Value: "pdf"}}

	handler.Student(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestExportHandlerFlightHistory(t *testing.T) {
	svc := &fakeExportService{}
	handler := NewExportHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/flight-history?date_from=2026-04-01&student_id=stu-1", nil, instructorClaims())

	handler.FlightHistory(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-04-01", svc.query.DateFrom)
	assert.Equal(t, "stu-1", svc.query.StudentID)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Pagination)
	assert.Contains(t, string(envelope.Data), "Jane Doe")
}
