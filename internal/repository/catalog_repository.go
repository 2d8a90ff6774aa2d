package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

// CatalogRepository manages the reference data instructors pick from:
// gliders, training topics, exercises and ground briefing topics.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const (
	gliderColumns   = `id, tail_number, model, manufacturer, year, is_active, created_at, updated_at`
	topicColumns    = `id, name, description, category, required_for_certification, created_at, updated_at`
	exerciseColumns = `id, name, description, category, number, is_required, created_at, updated_at`
	briefingColumns = `id, number, name, details, created_at, updated_at`
)

// ListGliders returns gliders ordered by tail number.
func (r *CatalogRepository) ListGliders(ctx context.Context, activeOnly bool) ([]models.Glider, error) {
	query := `SELECT ` + gliderColumns + ` FROM gliders`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY tail_number`
	var gliders []models.Glider
	if err := r.db.SelectContext(ctx, &gliders, query); err != nil {
		return nil, fmt.Errorf("list gliders: %w", err)
	}
	return gliders, nil
}

// FindGlider returns a glider by id.
func (r *CatalogRepository) FindGlider(ctx context.Context, id string) (*models.Glider, error) {
	const query = `SELECT ` + gliderColumns + ` FROM gliders WHERE id = $1`
	var glider models.Glider
	if err := r.db.GetContext(ctx, &glider, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find glider: %w", err)
	}
	return &glider, nil
}

// SaveGlider inserts or updates a glider keyed by tail number.
func (r *CatalogRepository) SaveGlider(ctx context.Context, glider *models.Glider) error {
	stampCatalog(&glider.ID, &glider.CreatedAt, &glider.UpdatedAt)
	const query = `INSERT INTO gliders (id, tail_number, model, manufacturer, year, is_active, created_at, updated_at)
VALUES (:id, :tail_number, :model, :manufacturer, :year, :is_active, :created_at, :updated_at)
ON CONFLICT (tail_number) DO UPDATE SET model = EXCLUDED.model, manufacturer = EXCLUDED.manufacturer, year = EXCLUDED.year, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
RETURNING id`
	return r.namedReturningID(ctx, query, glider, &glider.ID, "save glider")
}

// ListTopics returns training topics ordered by name.
func (r *CatalogRepository) ListTopics(ctx context.Context) ([]models.TrainingTopic, error) {
	const query = `SELECT ` + topicColumns + ` FROM training_topics ORDER BY name`
	var topics []models.TrainingTopic
	if err := r.db.SelectContext(ctx, &topics, query); err != nil {
		return nil, fmt.Errorf("list training topics: %w", err)
	}
	return topics, nil
}

// FindTopic returns a training topic by id.
func (r *CatalogRepository) FindTopic(ctx context.Context, id string) (*models.TrainingTopic, error) {
	const query = `SELECT ` + topicColumns + ` FROM training_topics WHERE id = $1`
	var topic models.TrainingTopic
	if err := r.db.GetContext(ctx, &topic, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find training topic: %w", err)
	}
	return &topic, nil
}

// SaveTopic inserts or updates a training topic keyed by name.
func (r *CatalogRepository) SaveTopic(ctx context.Context, topic *models.TrainingTopic) error {
	stampCatalog(&topic.ID, &topic.CreatedAt, &topic.UpdatedAt)
	const query = `INSERT INTO training_topics (id, name, description, category, required_for_certification, created_at, updated_at)
VALUES (:id, :name, :description, :category, :required_for_certification, :created_at, :updated_at)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, category = EXCLUDED.category, required_for_certification = EXCLUDED.required_for_certification, updated_at = EXCLUDED.updated_at
RETURNING id`
	return r.namedReturningID(ctx, query, topic, &topic.ID, "save training topic")
}

// ListExercises returns all exercises. Callers sort them for display.
func (r *CatalogRepository) ListExercises(ctx context.Context) ([]models.Exercise, error) {
	const query = `SELECT ` + exerciseColumns + ` FROM exercises ORDER BY number`
	var exercises []models.Exercise
	if err := r.db.SelectContext(ctx, &exercises, query); err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return exercises, nil
}

// SaveExercise inserts or updates an exercise keyed by number.
func (r *CatalogRepository) SaveExercise(ctx context.Context, exercise *models.Exercise) error {
	stampCatalog(&exercise.ID, &exercise.CreatedAt, &exercise.UpdatedAt)
	const query = `INSERT INTO exercises (id, name, description, category, number, is_required, created_at, updated_at)
VALUES (:id, :name, :description, :category, :number, :is_required, :created_at, :updated_at)
ON CONFLICT (number) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, category = EXCLUDED.category, is_required = EXCLUDED.is_required, updated_at = EXCLUDED.updated_at
RETURNING id`
	return r.namedReturningID(ctx, query, exercise, &exercise.ID, "save exercise")
}

// ListBriefingTopics returns ground briefing topics by syllabus number.
func (r *CatalogRepository) ListBriefingTopics(ctx context.Context) ([]models.GroundBriefingTopic, error) {
	const query = `SELECT ` + briefingColumns + ` FROM ground_briefing_topics ORDER BY number`
	var topics []models.GroundBriefingTopic
	if err := r.db.SelectContext(ctx, &topics, query); err != nil {
		return nil, fmt.Errorf("list briefing topics: %w", err)
	}
	return topics, nil
}

// SaveBriefingTopic inserts or updates a briefing topic keyed by number.
func (r *CatalogRepository) SaveBriefingTopic(ctx context.Context, topic *models.GroundBriefingTopic) error {
	stampCatalog(&topic.ID, &topic.CreatedAt, &topic.UpdatedAt)
	const query = `INSERT INTO ground_briefing_topics (id, number, name, details, created_at, updated_at)
VALUES (:id, :number, :name, :details, :created_at, :updated_at)
ON CONFLICT (number) DO UPDATE SET name = EXCLUDED.name, details = EXCLUDED.details, updated_at = EXCLUDED.updated_at
RETURNING id`
	return r.namedReturningID(ctx, query, topic, &topic.ID, "save briefing topic")
}

// Counts returns row counts per catalog table for health reporting.
func (r *CatalogRepository) Counts(ctx context.Context) (map[string]int, error) {
	const query = `SELECT
    (SELECT COUNT(*) FROM gliders) AS gliders,
    (SELECT COUNT(*) FROM training_topics) AS training_topics,
    (SELECT COUNT(*) FROM exercises) AS exercises,
    (SELECT COUNT(*) FROM ground_briefing_topics) AS briefing_topics`
	var row struct {
		Gliders        int `db:"gliders"`
		TrainingTopics int `db:"training_topics"`
		Exercises      int `db:"exercises"`
		BriefingTopics int `db:"briefing_topics"`
	}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("count catalog: %w", err)
	}
	return map[string]int{
		"gliders":         row.Gliders,
		"training_topics": row.TrainingTopics,
		"exercises":       row.Exercises,
		"briefing_topics": row.BriefingTopics,
	}, nil
}

// namedReturningID runs an upsert and reads back the surviving row id, which
// differs from the generated one when the conflict branch fired.
func (r *CatalogRepository) namedReturningID(ctx context.Context, query string, arg interface{}, id *string, op string) error {
	rows, err := r.db.NamedQueryContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(id); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func stampCatalog(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
