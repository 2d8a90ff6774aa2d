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

func TestListGlidersActiveOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "tail_number", "model", "manufacturer", "year", "is_active", "created_at", "updated_at"}).
		AddRow("g1", "GBX", "ASK-21", "Schleicher", 1990, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM gliders WHERE is_active = TRUE ORDER BY tail_number")).WillReturnRows(rows)

	gliders, err := repo.ListGliders(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, gliders, 1)
	assert.Equal(t, "GBX (ASK-21)", gliders[0].Label())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveExerciseKeepsExistingID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (number) DO UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing"))

	exercise := &models.Exercise{Name: "Launch", Number: "1a", Category: models.ExerciseCategoryPreSolo}
	require.NoError(t, repo.SaveExercise(context.Background(), exercise))
	assert.Equal(t, "existing", exercise.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM gliders")).
		WillReturnRows(sqlmock.NewRows([]string{"gliders", "training_topics", "exercises", "briefing_topics"}).AddRow(2, 3, 4, 5))

	counts, err := repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts["exercises"])
	assert.Equal(t, 5, counts["briefing_topics"])
}
