package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

const recordColumns = `tr.id, tr.student_id, tr.instructor_id, tr.training_topic_id, tr.glider_id, tr.is_solo, tr.date, tr.field, tr.flight_duration, tr.student_comments, tr.instructor_comments, tr.internal_comments, tr.tow_height, tr.signed_off, tr.sign_off_timestamp, tr.signature_hash, tr.created_by, tr.created_at, tr.updated_at`

const recordViewSelect = `SELECT ` + recordColumns + `,
    s.username AS student_username,
    TRIM(s.first_name || ' ' || s.last_name) AS student_name,
    s.email AS student_email,
    COALESCE(NULLIF(TRIM(i.first_name || ' ' || i.last_name), ''), i.username, '') AS instructor_name,
    t.name AS topic_name,
    g.tail_number AS glider_tail_number,
    g.model AS glider_model
FROM training_records tr
JOIN users s ON s.id = tr.student_id
LEFT JOIN users i ON i.id = tr.instructor_id
JOIN training_topics t ON t.id = tr.training_topic_id
JOIN gliders g ON g.id = tr.glider_id`

const performanceViewSelect = `SELECT ep.id, ep.training_record_id, ep.exercise_id, ep.performance, ep.notes, ep.created_at, ep.updated_at,
    e.name AS exercise_name, e.number AS exercise_number, e.category AS exercise_category
FROM exercise_performances ep
JOIN exercises e ON e.id = ep.exercise_id`

// TrainingRecordRepository persists training flights and their exercise ratings.
type TrainingRecordRepository struct {
	db *sqlx.DB
}

// NewTrainingRecordRepository constructs the repository.
func NewTrainingRecordRepository(db *sqlx.DB) *TrainingRecordRepository {
	return &TrainingRecordRepository{db: db}
}

// Create inserts a record together with its performances in one transaction.
func (r *TrainingRecordRepository) Create(ctx context.Context, record *models.TrainingRecord, performances []models.ExercisePerformance) (err error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO training_records (id, student_id, instructor_id, training_topic_id, glider_id, is_solo, date, field, flight_duration, student_comments, instructor_comments, internal_comments, tow_height, signed_off, sign_off_timestamp, signature_hash, created_by, created_at, updated_at)
VALUES (:id, :student_id, :instructor_id, :training_topic_id, :glider_id, :is_solo, :date, :field, :flight_duration, :student_comments, :instructor_comments, :internal_comments, :tow_height, :signed_off, :sign_off_timestamp, :signature_hash, :created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, record); err != nil {
		return fmt.Errorf("insert training record: %w", err)
	}

	if err = upsertPerformances(ctx, tx, record.ID, performances, now); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit training record: %w", err)
	}
	return nil
}

// Update locks the record, lets apply validate and mutate it, then writes the
// record and upserts the given performances. The returned values are the
// state before and after the change.
func (r *TrainingRecordRepository) Update(ctx context.Context, id string, apply func(current *models.TrainingRecord) error, performances []models.ExercisePerformance) (before, after *models.TrainingRecord, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin record transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.TrainingRecord
	const lock = `SELECT ` + recordColumns + ` FROM training_records tr WHERE tr.id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lock, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock training record: %w", err)
	}
	previous := current

	if err = apply(&current); err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	current.UpdatedAt = now

	const update = `UPDATE training_records SET student_id = :student_id, instructor_id = :instructor_id, training_topic_id = :training_topic_id, glider_id = :glider_id, is_solo = :is_solo, date = :date, field = :field, flight_duration = :flight_duration, student_comments = :student_comments, instructor_comments = :instructor_comments, internal_comments = :internal_comments, tow_height = :tow_height, signed_off = :signed_off, sign_off_timestamp = :sign_off_timestamp, signature_hash = :signature_hash, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, update, &current); err != nil {
		return nil, nil, fmt.Errorf("update training record: %w", err)
	}

	if err = upsertPerformances(ctx, tx, id, performances, now); err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit training record: %w", err)
	}
	return &previous, &current, nil
}

func upsertPerformances(ctx context.Context, tx *sqlx.Tx, recordID string, performances []models.ExercisePerformance, now time.Time) error {
	const upsert = `INSERT INTO exercise_performances (id, training_record_id, exercise_id, performance, notes, created_at, updated_at)
VALUES (:id, :training_record_id, :exercise_id, :performance, :notes, :created_at, :updated_at)
ON CONFLICT (training_record_id, exercise_id) DO UPDATE SET performance = EXCLUDED.performance, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	for i := range performances {
		p := performances[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.TrainingRecordID = recordID
		p.CreatedAt = now
		p.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, upsert, &p); err != nil {
			return fmt.Errorf("upsert exercise performance: %w", err)
		}
	}
	return nil
}

// SignOff marks an unsigned record as signed. It returns sql.ErrNoRows when
// the record is missing, already signed, or changed since expectedUpdatedAt.
func (r *TrainingRecordRepository) SignOff(ctx context.Context, id string, signedAt time.Time, signature string, expectedUpdatedAt time.Time) error {
	const query = `UPDATE training_records SET signed_off = TRUE, sign_off_timestamp = $2, signature_hash = $3, updated_at = $2 WHERE id = $1 AND signed_off = FALSE AND updated_at = $4`
	res, err := r.db.ExecContext(ctx, query, id, signedAt, signature, expectedUpdatedAt)
	if err != nil {
		return fmt.Errorf("sign off training record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sign off training record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns a record by id.
func (r *TrainingRecordRepository) FindByID(ctx context.Context, id string) (*models.TrainingRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM training_records tr WHERE tr.id = $1`
	var record models.TrainingRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find training record: %w", err)
	}
	return &record, nil
}

// FindView returns a record joined with its display fields.
func (r *TrainingRecordRepository) FindView(ctx context.Context, id string) (*models.TrainingRecordView, error) {
	query := recordViewSelect + ` WHERE tr.id = $1`
	var view models.TrainingRecordView
	if err := r.db.GetContext(ctx, &view, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find training record view: %w", err)
	}
	return &view, nil
}

// List returns records matching the filter, newest first, with a total count.
func (r *TrainingRecordRepository) List(ctx context.Context, filter models.TrainingRecordFilter) ([]models.TrainingRecordView, int, error) {
	where, args := recordWhere(filter)

	page, pageSize := normalizePage(filter.Page, filter.PageSize, 20)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s%s ORDER BY tr.date DESC, tr.created_at DESC LIMIT %d OFFSET %d", recordViewSelect, where, pageSize, offset)
	var records []models.TrainingRecordView
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list training records: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM training_records tr
JOIN users s ON s.id = tr.student_id
LEFT JOIN users i ON i.id = tr.instructor_id
JOIN training_topics t ON t.id = tr.training_topic_id
JOIN gliders g ON g.id = tr.glider_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count training records: %w", err)
	}
	return records, total, nil
}

func recordWhere(filter models.TrainingRecordFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("tr.student_id = $%d", len(args)))
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("tr.instructor_id = $%d", len(args)))
	}
	if filter.SignedOff != nil {
		args = append(args, *filter.SignedOff)
		conditions = append(conditions, fmt.Sprintf("tr.signed_off = $%d", len(args)))
	}
	if filter.IsSolo != nil {
		args = append(args, *filter.IsSolo)
		conditions = append(conditions, fmt.Sprintf("tr.is_solo = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("tr.date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("tr.date <= $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		n := len(args)
		columns := []string{
			"s.username", "s.first_name", "s.last_name",
			"i.username", "i.first_name", "i.last_name",
			"t.name", "g.tail_number", "tr.field",
		}
		matches := make([]string, len(columns))
		for i, col := range columns {
			matches[i] = fmt.Sprintf("LOWER(%s) LIKE $%d", col, n)
		}
		conditions = append(conditions, "("+strings.Join(matches, " OR ")+")")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ListForStudent returns every record of a student in logbook order.
func (r *TrainingRecordRepository) ListForStudent(ctx context.Context, studentID string) ([]models.TrainingRecordView, error) {
	query := recordViewSelect + ` WHERE tr.student_id = $1 ORDER BY tr.date, tr.created_at`
	var records []models.TrainingRecordView
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list student records: %w", err)
	}
	return records, nil
}

// FlightNumber returns the 1-based position of the record in the student's
// logbook ordered by date then creation time.
func (r *TrainingRecordRepository) FlightNumber(ctx context.Context, record models.TrainingRecord) (int, error) {
	const query = `SELECT COUNT(*) FROM training_records WHERE student_id = $1 AND (date < $2 OR (date = $2 AND created_at <= $3))`
	var n int
	if err := r.db.GetContext(ctx, &n, query, record.StudentID, record.Date, record.CreatedAt); err != nil {
		return 0, fmt.Errorf("compute flight number: %w", err)
	}
	return n, nil
}

// ListPerformances returns the rated exercises for one record.
func (r *TrainingRecordRepository) ListPerformances(ctx context.Context, recordID string) ([]models.ExercisePerformanceView, error) {
	query := performanceViewSelect + ` WHERE ep.training_record_id = $1 ORDER BY e.number`
	var perfs []models.ExercisePerformanceView
	if err := r.db.SelectContext(ctx, &perfs, query, recordID); err != nil {
		return nil, fmt.Errorf("list exercise performances: %w", err)
	}
	return perfs, nil
}

// ListPerformancesForStudent returns every performance across a student's records.
func (r *TrainingRecordRepository) ListPerformancesForStudent(ctx context.Context, studentID string) ([]models.ExercisePerformanceView, error) {
	query := performanceViewSelect + ` JOIN training_records tr ON tr.id = ep.training_record_id WHERE tr.student_id = $1`
	var perfs []models.ExercisePerformanceView
	if err := r.db.SelectContext(ctx, &perfs, query, studentID); err != nil {
		return nil, fmt.Errorf("list student performances: %w", err)
	}
	return perfs, nil
}

// StudentStats aggregates a student's logbook.
func (r *TrainingRecordRepository) StudentStats(ctx context.Context, studentID string) (models.RecordStats, error) {
	const query = `SELECT COUNT(*) AS total,
    COUNT(*) FILTER (WHERE is_solo) AS solo,
    COUNT(*) FILTER (WHERE signed_off) AS signed,
    COALESCE(SUM(flight_duration), 0) AS total_minutes
FROM training_records WHERE student_id = $1`
	var stats models.RecordStats
	if err := r.db.GetContext(ctx, &stats, query, studentID); err != nil {
		return models.RecordStats{}, fmt.Errorf("student record stats: %w", err)
	}
	return stats, nil
}

// InstructorStats aggregates the flights assigned to an instructor.
func (r *TrainingRecordRepository) InstructorStats(ctx context.Context, instructorID string) (models.InstructorStats, error) {
	const query = `SELECT COUNT(*) FILTER (WHERE NOT is_solo) AS instructional,
    COUNT(*) FILTER (WHERE is_solo) AS supervised_solos,
    COALESCE(SUM(flight_duration) FILTER (WHERE NOT is_solo), 0) AS instructional_minutes,
    COUNT(DISTINCT student_id) AS distinct_students
FROM training_records WHERE instructor_id = $1`
	var stats models.InstructorStats
	if err := r.db.GetContext(ctx, &stats, query, instructorID); err != nil {
		return models.InstructorStats{}, fmt.Errorf("instructor record stats: %w", err)
	}
	return stats, nil
}

// ListUnsignedForInstructor returns records awaiting the instructor's sign-off.
func (r *TrainingRecordRepository) ListUnsignedForInstructor(ctx context.Context, instructorID string, limit int) ([]models.TrainingRecordView, error) {
	query := recordViewSelect + fmt.Sprintf(` WHERE tr.instructor_id = $1 AND tr.signed_off = FALSE ORDER BY tr.date, tr.created_at LIMIT %d`, limit)
	var records []models.TrainingRecordView
	if err := r.db.SelectContext(ctx, &records, query, instructorID); err != nil {
		return nil, fmt.Errorf("list unsigned records: %w", err)
	}
	return records, nil
}

// RecentStudents returns students flown by the instructor since the given date.
func (r *TrainingRecordRepository) RecentStudents(ctx context.Context, instructorID string, since time.Time, limit int) ([]models.UserSummary, error) {
	query := fmt.Sprintf(`SELECT s.id, s.username, TRIM(s.first_name || ' ' || s.last_name) AS full_name
FROM users s
JOIN training_records tr ON tr.student_id = s.id
WHERE tr.instructor_id = $1 AND tr.date >= $2
GROUP BY s.id, s.username, s.first_name, s.last_name
ORDER BY MAX(tr.date) DESC
LIMIT %d`, limit)
	var students []models.UserSummary
	if err := r.db.SelectContext(ctx, &students, query, instructorID, since); err != nil {
		return nil, fmt.Errorf("list recent students: %w", err)
	}
	return students, nil
}

// FlightHistory lists dual instruction flights for an instructor in a date range.
func (r *TrainingRecordRepository) FlightHistory(ctx context.Context, filter models.FlightHistoryFilter, paginate bool) ([]models.FlightHistoryEntry, int, error) {
	args := []interface{}{filter.InstructorID, filter.From, filter.To}
	where := ` WHERE tr.instructor_id = $1 AND tr.is_solo = FALSE AND tr.date >= $2 AND tr.date <= $3`
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where += fmt.Sprintf(" AND tr.student_id = $%d", len(args))
	}

	base := `FROM training_records tr
JOIN users s ON s.id = tr.student_id
JOIN gliders g ON g.id = tr.glider_id` + where

	query := `SELECT tr.id, tr.date, tr.student_id,
    COALESCE(NULLIF(TRIM(s.first_name || ' ' || s.last_name), ''), s.username) AS student_name,
    s.student_license_number, tr.flight_duration,
    g.tail_number AS glider_tail_number, g.model AS glider_model ` + base + ` ORDER BY tr.date DESC, tr.created_at DESC`
	if paginate {
		page, pageSize := normalizePage(filter.Page, filter.PageSize, 25)
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
	}

	var entries []models.FlightHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list flight history: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) `+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count flight history: %w", err)
	}
	return entries, total, nil
}

// Count returns the total number of records for health reporting.
func (r *TrainingRecordRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM training_records`); err != nil {
		return 0, fmt.Errorf("count training records: %w", err)
	}
	return total, nil
}
