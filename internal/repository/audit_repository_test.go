package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

func TestCreateAuditBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 2))

	logs := []models.AuditLog{
		{Action: models.AuditActionCreate, TableName: models.TableTrainingRecords, RecordID: "r1", NewValues: models.JSONB(`{"a":1}`)},
		{Action: models.AuditActionUpdate, TableName: models.TableUsers, RecordID: "u1"},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), logs))
	assert.NotEmpty(t, logs[0].ID)
	assert.False(t, logs[1].Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditBatchEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	require.NoError(t, repo.CreateBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditLogsFiltered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "table_name", "record_id", "old_values", "new_values", "ip_address", "user_agent", "timestamp"}).
		AddRow("a1", "u1", "UPDATE", "training_records", "r1", []byte(`{"x":1}`), []byte(`{"x":2}`), "10.0.0.1", "ua", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE table_name = $1 AND record_id = $2 ORDER BY timestamp DESC")).
		WithArgs("training_records", "r1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE table_name = $1")).
		WithArgs("training_records", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	logs, total, err := repo.List(context.Background(), models.AuditFilter{TableName: "training_records", RecordID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.JSONEq(t, `{"x":2}`, string(logs[0].NewValues))
}
