package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/export"
)

func TestSortExercises(t *testing.T) {
	exercises := []models.Exercise{
		{ID: "a", Number: "10"},
		{ID: "b", Number: "2b"},
		{ID: "c", Number: "misc"},
		{ID: "d", Number: "2a"},
		{ID: "e", Number: "Ex 3"},
	}
	SortExercises(exercises)

	var order []string
	for _, e := range exercises {
		order = append(order, e.Number)
	}
	assert.Equal(t, []string{"2a", "2b", "Ex 3", "10", "misc"}, order)
}

func matrixRecord(id string, day int, solo bool) models.TrainingRecordView {
	return models.TrainingRecordView{TrainingRecord: models.TrainingRecord{
		ID:     id,
		Date:   time.Date(2026, 4, day, 0, 0, 0, 0, time.UTC),
		IsSolo: solo,
	}}
}

func TestBuildExerciseMatrixSections(t *testing.T) {
	exercises := []models.Exercise{
		{ID: "pre1", Number: "1", Category: models.ExerciseCategoryPreSolo},
		{ID: "pre2", Number: "2", Category: models.ExerciseCategoryPreSolo},
		{ID: "post1", Number: "20", Category: models.ExerciseCategoryPostSolo},
	}
	records := []models.TrainingRecordView{
		matrixRecord("r1", 1, false),
		matrixRecord("r2", 2, false),
		matrixRecord("r3", 3, true),
	}
	performances := []models.ExercisePerformanceView{
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r1", ExerciseID: "pre1", Performance: models.PerformanceWell}},
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r1", ExerciseID: "pre2", Performance: models.PerformanceNotPerformed}},
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r2", ExerciseID: "pre1", Performance: models.PerformanceBadly}},
		{ExercisePerformance: models.ExercisePerformance{TrainingRecordID: "r2", ExerciseID: "post1", Performance: models.PerformanceNeedsImprovement}},
	}

	pages := BuildExerciseMatrix(records, performances, exercises, 25)
	require.Len(t, pages, 2)

	pre := pages[0]
	assert.Equal(t, MatrixSectionPreSolo, pre.Section)
	require.Len(t, pre.Columns, 2)
	require.Len(t, pre.Rows, 1)
	assert.Equal(t, 1, pre.Rows[0].FlightNumber)
	assert.Equal(t, []string{export.SymbolPerformedWell, ""}, pre.Rows[0].Cells)

	post := pages[1]
	assert.Equal(t, MatrixSectionPostSolo, post.Section)
	require.Len(t, post.Columns, 1)
	require.Len(t, post.Rows, 2)
	assert.Equal(t, []string{export.SymbolNeedsImprovement}, post.Rows[0].Cells)
	assert.Equal(t, 3, post.Rows[1].FlightNumber)
	assert.True(t, post.Rows[1].Solo)
	assert.Equal(t, 2, post.TotalPages)
	assert.Equal(t, 2, post.PageNumber)
}

func TestBuildExerciseMatrixPaginates(t *testing.T) {
	exercises := []models.Exercise{{ID: "pre1", Number: "1", Category: models.ExerciseCategoryPreSolo}}
	var records []models.TrainingRecordView
	for i := 0; i < 30; i++ {
		records = append(records, matrixRecord(fmt.Sprintf("r%02d", i), 1+i%28, false))
	}

	pages := BuildExerciseMatrix(records, nil, exercises, 25)
	require.Len(t, pages, 2)
	assert.Len(t, pages[0].Rows, 25)
	assert.Len(t, pages[1].Rows, 5)
	for _, p := range pages {
		assert.Equal(t, MatrixSectionPreSolo, p.Section)
	}
	first := pages[0].Rows[0]
	assert.Equal(t, "2026-04-01", first.Date)
}
