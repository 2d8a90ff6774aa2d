package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type auditLogRepository interface {
	CreateBatch(ctx context.Context, logs []models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditRequestMeta describes who made the request being audited.
type AuditRequestMeta struct {
	UserID    *string
	IPAddress string
	UserAgent string
}

// AuditService persists collected audit entries and serves the audit trail.
type AuditService struct {
	repo    auditLogRepository
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(repo auditLogRepository, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, metrics: metrics, logger: logger}
}

// Persist writes the collector's entries. Failures are logged and counted,
// never returned, so the response already sent is unaffected.
func (s *AuditService) Persist(ctx context.Context, collector *AuditCollector, meta AuditRequestMeta) {
	entries := collector.Entries()
	if len(entries) == 0 {
		return
	}
	logs := make([]models.AuditLog, 0, len(entries))
	for _, entry := range entries {
		oldValues, err := encodeAuditValues(entry.OldValues)
		if err != nil {
			s.logger.Warn("failed to encode audit values", zap.String("table", entry.TableName), zap.Error(err))
			continue
		}
		newValues, err := encodeAuditValues(entry.NewValues)
		if err != nil {
			s.logger.Warn("failed to encode audit values", zap.String("table", entry.TableName), zap.Error(err))
			continue
		}
		logs = append(logs, models.AuditLog{
			UserID:    meta.UserID,
			Action:    entry.Action,
			TableName: entry.TableName,
			RecordID:  entry.RecordID,
			OldValues: oldValues,
			NewValues: newValues,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
	}
	if err := s.repo.CreateBatch(ctx, logs); err != nil {
		s.metrics.IncAuditFailure()
		s.logger.Error("failed to write audit logs", zap.Int("entries", len(logs)), zap.Error(err))
	}
}

// List returns audit rows with pagination metadata.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

func encodeAuditValues(values map[string]interface{}) (models.JSONB, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return models.MarshalJSONB(values)
}
