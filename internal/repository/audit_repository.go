package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

// AuditRepository appends and lists audit log rows.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateBatch inserts the rows of one request.
func (r *AuditRepository) CreateBatch(ctx context.Context, logs []models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range logs {
		if logs[i].ID == "" {
			logs[i].ID = uuid.NewString()
		}
		if logs[i].Timestamp.IsZero() {
			logs[i].Timestamp = now
		}
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, table_name, record_id, old_values, new_values, ip_address, user_agent, timestamp) VALUES (:id, :user_id, :action, :table_name, :record_id, :old_values, :new_values, :ip_address, :user_agent, :timestamp)`
	if _, err := r.db.NamedExecContext(ctx, query, logs); err != nil {
		return fmt.Errorf("create audit logs: %w", err)
	}
	return nil
}

// List returns audit rows newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	var conditions []string
	var args []interface{}
	if filter.TableName != "" {
		args = append(args, filter.TableName)
		conditions = append(conditions, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if filter.RecordID != "" {
		args = append(args, filter.RecordID)
		conditions = append(conditions, fmt.Sprintf("record_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize, 50)
	query := fmt.Sprintf(`SELECT id, user_id, action, table_name, record_id, old_values, new_values, ip_address, user_agent, timestamp FROM audit_logs%s ORDER BY timestamp DESC LIMIT %d OFFSET %d`, where, pageSize, (page-1)*pageSize)
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return logs, total, nil
}
