package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/export"
)

// Export formats served by /export/:id/:format.
const (
	ExportFormatCSV    = "csv"
	ExportFormatPDF    = "pdf"
	ExportFormatMatrix = "matrix"
)

const (
	contentTypeCSV = "text/csv; charset=utf-8"
	contentTypePDF = "application/pdf"
)

var recordCSVHeaders = []string{
	"Flight Number", "Date", "Topic", "Glider", "Location", "Instructor",
	"Tow Height", "Duration", "Solo Flight", "Student Comments",
	"Instructor Comments", "Signed Off", "Sign Off Date",
}

var historyCSVHeaders = []string{"Date", "Student Name", "Student License Number", "Duration", "Glider"}

type exportRecordReader interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.TrainingRecordView, error)
	ListPerformancesForStudent(ctx context.Context, studentID string) ([]models.ExercisePerformanceView, error)
	FlightHistory(ctx context.Context, filter models.FlightHistoryFilter, paginate bool) ([]models.FlightHistoryEntry, int, error)
}

type exportBriefingReader interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.GroundBriefingView, error)
}

type exerciseLister interface {
	ListExercises(ctx context.Context) ([]models.Exercise, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(report export.Report) ([]byte, error)
}

type matrixRenderer interface {
	Render(doc export.MatrixDocument) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MatrixRowsPerPage int
	HistoryPageSize   int
	HistoryRangeDays  int
}

// ExportFile is a fully rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FlightHistory is one page of an instructor's instructional flights.
type FlightHistory struct {
	Entries    []models.FlightHistoryEntry `json:"entries"`
	From       string                      `json:"date_from"`
	To         string                      `json:"date_to"`
	Pagination *models.Pagination          `json:"-"`
}

// ExportService renders logbook exports. Every document is rendered into
// memory first so a failure never leaves a partial download.
type ExportService struct {
	records   exportRecordReader
	briefings exportBriefingReader
	exercises exerciseLister
	users     recordUserReader
	csv       csvRenderer
	pdf       pdfRenderer
	matrix    matrixRenderer
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// defaults from pkg/export.
func NewExportService(records exportRecordReader, briefings exportBriefingReader, exercises exerciseLister, users recordUserReader, cfg ExportConfig, metrics *MetricsService, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, matrix matrixRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MatrixRowsPerPage <= 0 {
		cfg.MatrixRowsPerPage = defaultMatrixRowsPerPage
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 25
	}
	if cfg.HistoryRangeDays <= 0 {
		cfg.HistoryRangeDays = 365
	}
	if csv == nil {
		csv = export.NewCSVExporter(export.WithBOM(), export.WithQuoteAll())
	}
	if pdf == nil {
		pdf = export.NewLandscapePDFExporter()
	}
	if matrix == nil {
		matrix = export.NewMatrixRenderer("")
	}
	return &ExportService{
		records:   records,
		briefings: briefings,
		exercises: exercises,
		users:     users,
		csv:       csv,
		pdf:       pdf,
		matrix:    matrix,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ExportStudent renders a student's logbook in the requested format.
func (s *ExportService) ExportStudent(ctx context.Context, actor Actor, studentID, format string) (file *ExportFile, err error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case ExportFormatCSV, ExportFormatPDF, ExportFormatMatrix:
	default:
		return nil, fieldError("format", "format must be one of csv, pdf, matrix")
	}
	if actor.isStudent() && actor.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only export your own training records.")
	}

	defer func() {
		s.metrics.IncExport(format, err == nil)
	}()

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.UserType != models.UserTypeStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	records, err := s.records.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training records")
	}
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "No training records found")
	}

	switch format {
	case ExportFormatCSV:
		file, err = s.recordsCSV(student, records)
	case ExportFormatPDF:
		file, err = s.summaryPDF(ctx, student, records)
	default:
		file, err = s.exerciseMatrix(ctx, student, records)
	}
	if err != nil {
		s.logger.Error("export failed", zap.String("student_id", studentID), zap.String("format", format), zap.Error(err))
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return file, nil
}

func (s *ExportService) recordsCSV(student *models.User, records []models.TrainingRecordView) (*ExportFile, error) {
	dataset := export.Dataset{Headers: recordCSVHeaders, Rows: make([]map[string]string, 0, len(records))}
	for i, r := range records {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Flight Number":       strconv.Itoa(i + 1),
			"Date":                r.Date.Format(models.DateLayout),
			"Topic":               r.TopicName,
			"Glider":              models.GliderLabel(r.GliderTail, r.GliderModel),
			"Location":            r.Field,
			"Instructor":          instructorLabel(r),
			"Tow Height":          towHeightLabel(r.TowHeight),
			"Duration":            models.FormatDuration(r.FlightDuration),
			"Solo Flight":         yesNo(r.IsSolo),
			"Student Comments":    r.StudentComments,
			"Instructor Comments": r.InstructorComments,
			"Signed Off":          approvedLabel(r.SignedOff),
			"Sign Off Date":       signOffLabel(r.SignOffTimestamp),
		})
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, err
	}
	return &ExportFile{Filename: exportFilename(student.Username, "training_records.csv"), ContentType: contentTypeCSV, Data: data}, nil
}

func (s *ExportService) summaryPDF(ctx context.Context, student *models.User, records []models.TrainingRecordView) (*ExportFile, error) {
	briefings, err := s.briefings.ListForStudent(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("load briefings: %w", err)
	}

	var solo, signed, minutes int
	rows := make([]map[string]string, 0, len(records))
	for i, r := range records {
		if r.IsSolo {
			solo++
		}
		if r.SignedOff {
			signed++
		}
		minutes += r.FlightDuration
		rows = append(rows, map[string]string{
			"#":          strconv.Itoa(i + 1),
			"Date":       r.Date.Format(models.DateLayout),
			"Topic":      r.TopicName,
			"Glider":     models.GliderLabel(r.GliderTail, r.GliderModel),
			"Field":      r.Field,
			"Instructor": instructorLabel(r),
			"Duration":   models.FormatDuration(r.FlightDuration),
			"Signed":     approvedLabel(r.SignedOff),
		})
	}

	briefingRows := make([]map[string]string, 0, len(briefings))
	for _, b := range briefings {
		if !b.SignedOff {
			continue
		}
		briefingRows = append(briefingRows, map[string]string{
			"#":          strconv.Itoa(b.TopicNumber),
			"Topic":      b.TopicName,
			"Instructor": b.InstructorName,
			"Signed":     signOffLabel(b.SignOffDate),
		})
	}

	licence := student.StudentLicenseNumber
	if licence == "" {
		licence = "Not Provided"
	}
	expiry := "Not Provided"
	if student.LicenseExpirationDate != nil {
		expiry = student.LicenseExpirationDate.Format(models.DateLayout)
	}

	report := export.Report{
		Title:    "Training Record Summary",
		Subtitle: student.FullName(),
		Footer:   "Generated " + s.now().UTC().Format("2006-01-02 15:04"),
		Sections: []export.Section{
			{
				Heading: "Student",
				Facts: [][2]string{
					{"Name", student.FullName()},
					{"Username", student.Username},
					{"Email", student.Email},
					{"Licence Number", licence},
					{"Licence Expiry", expiry},
				},
			},
			{
				Heading: "Totals",
				Facts: [][2]string{
					{"Total Flights", strconv.Itoa(len(records))},
					{"Solo Flights", strconv.Itoa(solo)},
					{"Signed Flights", strconv.Itoa(signed)},
					{"Total Flight Time", models.FormatDuration(minutes)},
				},
			},
			{
				Heading:      "Training Records",
				Table:        &export.Dataset{Headers: []string{"#", "Date", "Topic", "Glider", "Field", "Instructor", "Duration", "Signed"}, Rows: rows},
				ColumnWidths: []float64{12, 24, 55, 40, 40, 50, 22, 34},
			},
			{
				Heading:   "Ground Briefings",
				Table:     &export.Dataset{Headers: []string{"#", "Topic", "Instructor", "Signed"}, Rows: briefingRows},
				EmptyText: "No ground briefings signed off yet.",
			},
		},
	}

	data, err := s.pdf.Render(report)
	if err != nil {
		return nil, err
	}
	return &ExportFile{Filename: exportFilename(student.Username, "training_summary.pdf"), ContentType: contentTypePDF, Data: data}, nil
}

func (s *ExportService) exerciseMatrix(ctx context.Context, student *models.User, records []models.TrainingRecordView) (*ExportFile, error) {
	exercises, err := s.exercises.ListExercises(ctx)
	if err != nil {
		return nil, fmt.Errorf("load exercises: %w", err)
	}
	if len(exercises) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "No exercises found to generate matrix")
	}
	performances, err := s.records.ListPerformancesForStudent(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("load performances: %w", err)
	}

	doc := export.MatrixDocument{
		Title:     "Exercise Matrix",
		Student:   student.FullName(),
		Generated: s.now().UTC().Format("2006-01-02 15:04"),
		Pages:     BuildExerciseMatrix(records, performances, exercises, s.cfg.MatrixRowsPerPage),
	}
	data, err := s.matrix.Render(doc)
	if err != nil {
		return nil, err
	}
	return &ExportFile{Filename: exportFilename(student.Username, "exercise_matrix.pdf"), ContentType: contentTypePDF, Data: data}, nil
}

// FlightHistory lists the instructional flights of an instructor. The range
// defaults to the last year and is swapped when given in reverse.
func (s *ExportService) FlightHistory(ctx context.Context, actor Actor, query dto.FlightHistoryQuery) (*FlightHistory, error) {
	filter, err := s.historyFilter(actor, query)
	if err != nil {
		return nil, err
	}
	entries, total, err := s.records.FlightHistory(ctx, filter, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load flight history")
	}
	return &FlightHistory{
		Entries:    entries,
		From:       filter.From.Format(models.DateLayout),
		To:         filter.To.Format(models.DateLayout),
		Pagination: &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// ExportFlightHistory renders the whole filtered history as CSV.
func (s *ExportService) ExportFlightHistory(ctx context.Context, actor Actor, query dto.FlightHistoryQuery) (file *ExportFile, err error) {
	defer func() {
		s.metrics.IncExport("history_csv", err == nil)
	}()

	filter, err := s.historyFilter(actor, query)
	if err != nil {
		return nil, err
	}
	entries, _, err := s.records.FlightHistory(ctx, filter, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load flight history")
	}

	dataset := export.Dataset{Headers: historyCSVHeaders, Rows: make([]map[string]string, 0, len(entries))}
	for _, e := range entries {
		licence := e.StudentLicenseNumber
		if licence == "" {
			licence = "Not Provided"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":                   e.Date.Format(models.DateLayout),
			"Student Name":           e.StudentName,
			"Student License Number": licence,
			"Duration":               models.FormatDuration(e.FlightDuration),
			"Glider":                 models.GliderLabel(e.GliderTail, e.GliderModel),
		})
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	name := fmt.Sprintf("flight_history_%s_%s.csv", filter.From.Format("20060102"), filter.To.Format("20060102"))
	return &ExportFile{Filename: name, ContentType: contentTypeCSV, Data: data}, nil
}

func (s *ExportService) historyFilter(actor Actor, query dto.FlightHistoryQuery) (models.FlightHistoryFilter, error) {
	if !actor.isInstructor() {
		return models.FlightHistoryFilter{}, appErrors.Clone(appErrors.ErrForbidden, "Only instructors have a flight history.")
	}
	today := truncateToDate(s.now())
	filter := models.FlightHistoryFilter{
		InstructorID: actor.ID,
		StudentID:    strings.TrimSpace(query.StudentID),
		From:         today.AddDate(0, 0, -s.cfg.HistoryRangeDays),
		To:           today,
		Page:         query.Page,
		PageSize:     s.cfg.HistoryPageSize,
	}
	if query.DateFrom != "" {
		from, err := parseDate("date_from", query.DateFrom)
		if err != nil {
			return filter, err
		}
		filter.From = from
	}
	if query.DateTo != "" {
		to, err := parseDate("date_to", query.DateTo)
		if err != nil {
			return filter, err
		}
		filter.To = to
	}
	if filter.From.After(filter.To) {
		filter.From, filter.To = filter.To, filter.From
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	return filter, nil
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func exportFilename(username, suffix string) string {
	return sanitizeFilename(username) + "_" + suffix
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "\"", "", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func instructorLabel(r models.TrainingRecordView) string {
	if r.IsSolo {
		return "Solo Flight"
	}
	if r.InstructorName == "" {
		return "Unknown"
	}
	return r.InstructorName
}

func towHeightLabel(height *int) string {
	if height == nil || *height == 0 {
		return ""
	}
	return fmt.Sprintf("%d ft", *height)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func approvedLabel(signed bool) string {
	if signed {
		return "Approved"
	}
	return "Not Approved"
}

func signOffLabel(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02 15:04")
}
