package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type catalogRepository interface {
	ListGliders(ctx context.Context, activeOnly bool) ([]models.Glider, error)
	SaveGlider(ctx context.Context, glider *models.Glider) error
	ListTopics(ctx context.Context) ([]models.TrainingTopic, error)
	SaveTopic(ctx context.Context, topic *models.TrainingTopic) error
	ListExercises(ctx context.Context) ([]models.Exercise, error)
	SaveExercise(ctx context.Context, exercise *models.Exercise) error
	ListBriefingTopics(ctx context.Context) ([]models.GroundBriefingTopic, error)
	SaveBriefingTopic(ctx context.Context, topic *models.GroundBriefingTopic) error
}

// ImportResult counts rows touched by an import.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func (r *ImportResult) add(created bool) {
	if created {
		r.Created++
		return
	}
	r.Updated++
}

// CatalogService exposes the reference data and its administration.
type CatalogService struct {
	repo      catalogRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs the service.
func NewCatalogService(repo catalogRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &CatalogService{repo: repo, validator: validate, logger: logger}
}

// Gliders lists the fleet. Inactive gliders are only returned on request.
func (s *CatalogService) Gliders(ctx context.Context, includeInactive bool) ([]models.Glider, error) {
	gliders, err := s.repo.ListGliders(ctx, !includeInactive)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list gliders")
	}
	return gliders, nil
}

func (s *CatalogService) Topics(ctx context.Context) ([]models.TrainingTopic, error) {
	topics, err := s.repo.ListTopics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list training topics")
	}
	return topics, nil
}

// Exercises returns the syllabus in display order.
func (s *CatalogService) Exercises(ctx context.Context) ([]models.Exercise, error) {
	exercises, err := s.repo.ListExercises(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exercises")
	}
	SortExercises(exercises)
	return exercises, nil
}

func (s *CatalogService) BriefingTopics(ctx context.Context) ([]models.GroundBriefingTopic, error) {
	topics, err := s.repo.ListBriefingTopics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list briefing topics")
	}
	return topics, nil
}

// SaveGlider creates or updates the glider with the given tail number.
func (s *CatalogService) SaveGlider(ctx context.Context, req dto.GliderRequest) (*models.Glider, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid glider payload")
	}
	glider, _, err := s.saveGlider(ctx, req)
	return glider, err
}

// SaveTopic creates or updates the training topic with the given name.
func (s *CatalogService) SaveTopic(ctx context.Context, req dto.TrainingTopicRequest) (*models.TrainingTopic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid training topic payload")
	}
	topic, _, err := s.saveTopic(ctx, req)
	return topic, err
}

// SaveExercise creates or updates the exercise with the given number.
func (s *CatalogService) SaveExercise(ctx context.Context, req dto.ExerciseRequest) (*models.Exercise, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid exercise payload")
	}
	exercise, _, err := s.saveExercise(ctx, req)
	return exercise, err
}

// ImportInitialData upserts gliders, topics and exercises by natural key.
func (s *CatalogService) ImportInitialData(ctx context.Context, data dto.CatalogImport) (map[string]ImportResult, error) {
	if err := s.validator.Struct(data); err != nil {
		return nil, validationError(err, "invalid import file")
	}
	results := map[string]ImportResult{}

	var gliders ImportResult
	for _, req := range data.Gliders {
		_, created, err := s.saveGlider(ctx, req)
		if err != nil {
			return results, err
		}
		gliders.add(created)
	}
	results[models.TableGliders] = gliders

	var topics ImportResult
	for _, req := range data.Topics {
		_, created, err := s.saveTopic(ctx, req)
		if err != nil {
			return results, err
		}
		topics.add(created)
	}
	results[models.TableTrainingTopics] = topics

	var exercises ImportResult
	for _, req := range data.Exercises {
		_, created, err := s.saveExercise(ctx, req)
		if err != nil {
			return results, err
		}
		exercises.add(created)
	}
	results[models.TableExercises] = exercises

	s.logger.Info("catalog imported",
		zap.Int("gliders", len(data.Gliders)),
		zap.Int("topics", len(data.Topics)),
		zap.Int("exercises", len(data.Exercises)))
	return results, nil
}

// ImportBriefingTopics upserts ground briefing topics by number.
func (s *CatalogService) ImportBriefingTopics(ctx context.Context, data dto.BriefingTopicImport) (ImportResult, error) {
	var result ImportResult
	if err := s.validator.Struct(data); err != nil {
		return result, validationError(err, "invalid import file")
	}
	for _, req := range data.Topics {
		topic := &models.GroundBriefingTopic{
			ID:      uuid.NewString(),
			Number:  req.Number,
			Name:    strings.TrimSpace(req.Name),
			Details: req.Details,
		}
		generated := topic.ID
		if err := s.repo.SaveBriefingTopic(ctx, topic); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save briefing topic")
		}
		created := topic.ID == generated
		s.auditSave(ctx, models.TableGroundBriefingTopics, topic.ID, created, topic)
		result.add(created)
	}
	return result, nil
}

func (s *CatalogService) saveGlider(ctx context.Context, req dto.GliderRequest) (*models.Glider, bool, error) {
	glider := &models.Glider{
		ID:           uuid.NewString(),
		TailNumber:   strings.ToUpper(strings.TrimSpace(req.TailNumber)),
		Model:        strings.TrimSpace(req.Model),
		Manufacturer: strings.TrimSpace(req.Manufacturer),
		Year:         req.Year,
		Active:       req.Active == nil || *req.Active,
	}
	generated := glider.ID
	if err := s.repo.SaveGlider(ctx, glider); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save glider")
	}
	created := glider.ID == generated
	s.auditSave(ctx, models.TableGliders, glider.ID, created, glider)
	return glider, created, nil
}

func (s *CatalogService) saveTopic(ctx context.Context, req dto.TrainingTopicRequest) (*models.TrainingTopic, bool, error) {
	topic := &models.TrainingTopic{
		ID:                       uuid.NewString(),
		Name:                     strings.TrimSpace(req.Name),
		Description:              req.Description,
		Category:                 strings.TrimSpace(req.Category),
		RequiredForCertification: req.RequiredForCertification,
	}
	generated := topic.ID
	if err := s.repo.SaveTopic(ctx, topic); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save training topic")
	}
	created := topic.ID == generated
	s.auditSave(ctx, models.TableTrainingTopics, topic.ID, created, topic)
	return topic, created, nil
}

func (s *CatalogService) saveExercise(ctx context.Context, req dto.ExerciseRequest) (*models.Exercise, bool, error) {
	exercise := &models.Exercise{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    models.ExerciseCategory(req.Category),
		Number:      strings.TrimSpace(req.Number),
		Required:    req.Required,
	}
	generated := exercise.ID
	if err := s.repo.SaveExercise(ctx, exercise); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save exercise")
	}
	created := exercise.ID == generated
	s.auditSave(ctx, models.TableExercises, exercise.ID, created, exercise)
	return exercise, created, nil
}

// auditSave records upserts. The previous row is not read back, so updates
// carry only the new values.
func (s *CatalogService) auditSave(ctx context.Context, table, id string, created bool, value interface{}) {
	if created {
		auditCreate(ctx, table, id, value)
		return
	}
	auditUpdate(ctx, table, id, nil, value)
}
