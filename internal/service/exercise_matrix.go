package service

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/export"
)

// Matrix section names.
const (
	MatrixSectionPreSolo  = "Pre-solo"
	MatrixSectionPostSolo = "Post-solo"
)

const (
	defaultMatrixRowsPerPage = 25
	unnumberedExerciseOrder  = 999
)

var firstNumber = regexp.MustCompile(`\d+`)

// exerciseOrder is the first integer found in the exercise number, or 999.
func exerciseOrder(number string) int {
	match := firstNumber.FindString(number)
	if match == "" {
		return unnumberedExerciseOrder
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return unnumberedExerciseOrder
	}
	return n
}

// SortExercises orders exercises by their numeric prefix, then by number text.
func SortExercises(exercises []models.Exercise) {
	sort.SliceStable(exercises, func(i, j int) bool {
		oi, oj := exerciseOrder(exercises[i].Number), exerciseOrder(exercises[j].Number)
		if oi != oj {
			return oi < oj
		}
		return exercises[i].Number < exercises[j].Number
	})
}

// PerformanceSymbol maps a rating to its matrix symbol. not_performed is blank.
func PerformanceSymbol(rating models.PerformanceRating) string {
	switch rating {
	case models.PerformanceWell:
		return export.SymbolPerformedWell
	case models.PerformanceNeedsImprovement:
		return export.SymbolNeedsImprovement
	case models.PerformanceBadly:
		return export.SymbolPerformedBadly
	default:
		return ""
	}
}

type matrixFlight struct {
	record  models.TrainingRecordView
	number  int
	ratings map[string]models.PerformanceRating
}

// BuildExerciseMatrix lays out a student's flights against the syllabus.
// records must be in flight-number order (date, created_at). A flight goes to
// the post-solo section when it is solo or rates any post-solo exercise.
func BuildExerciseMatrix(records []models.TrainingRecordView, performances []models.ExercisePerformanceView, exercises []models.Exercise, rowsPerPage int) []export.MatrixPage {
	if rowsPerPage <= 0 {
		rowsPerPage = defaultMatrixRowsPerPage
	}

	sorted := append([]models.Exercise(nil), exercises...)
	SortExercises(sorted)
	var preSolo, postSolo []models.Exercise
	for _, e := range sorted {
		if e.Category == models.ExerciseCategoryPostSolo {
			postSolo = append(postSolo, e)
		} else {
			preSolo = append(preSolo, e)
		}
	}

	ratings := make(map[string]map[string]models.PerformanceRating, len(records))
	for _, p := range performances {
		byExercise, ok := ratings[p.TrainingRecordID]
		if !ok {
			byExercise = map[string]models.PerformanceRating{}
			ratings[p.TrainingRecordID] = byExercise
		}
		byExercise[p.ExerciseID] = p.Performance
	}

	flights := make([]matrixFlight, 0, len(records))
	for i, r := range records {
		flights = append(flights, matrixFlight{record: r, number: i + 1, ratings: ratings[r.ID]})
	}
	sort.SliceStable(flights, func(i, j int) bool {
		di, dj := flights[i].record.Date, flights[j].record.Date
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return flights[i].record.ID < flights[j].record.ID
	})

	var preFlights, postFlights []matrixFlight
	for _, f := range flights {
		if isPostSoloFlight(f, postSolo) {
			postFlights = append(postFlights, f)
		} else {
			preFlights = append(preFlights, f)
		}
	}

	pages := paginateMatrix(MatrixSectionPreSolo, preFlights, preSolo, rowsPerPage)
	pages = append(pages, paginateMatrix(MatrixSectionPostSolo, postFlights, postSolo, rowsPerPage)...)
	for i := range pages {
		pages[i].PageNumber = i + 1
		pages[i].TotalPages = len(pages)
	}
	return pages
}

func isPostSoloFlight(f matrixFlight, postSolo []models.Exercise) bool {
	if f.record.IsSolo {
		return true
	}
	for _, e := range postSolo {
		if f.ratings[e.ID].Performed() {
			return true
		}
	}
	return false
}

func paginateMatrix(section string, flights []matrixFlight, exercises []models.Exercise, rowsPerPage int) []export.MatrixPage {
	if len(flights) == 0 {
		return nil
	}
	columns := make([]export.MatrixColumn, 0, len(exercises))
	for _, e := range exercises {
		columns = append(columns, export.MatrixColumn{Number: e.Number, Name: e.Name})
	}

	var pages []export.MatrixPage
	for start := 0; start < len(flights); start += rowsPerPage {
		end := start + rowsPerPage
		if end > len(flights) {
			end = len(flights)
		}
		page := export.MatrixPage{Section: section, Columns: columns}
		for _, f := range flights[start:end] {
			cells := make([]string, 0, len(exercises))
			for _, e := range exercises {
				cells = append(cells, PerformanceSymbol(f.ratings[e.ID]))
			}
			page.Rows = append(page.Rows, export.MatrixRow{
				FlightNumber: f.number,
				Date:         f.record.Date.Format(models.DateLayout),
				Solo:         f.record.IsSolo,
				Cells:        cells,
			})
		}
		pages = append(pages, page)
	}
	return pages
}
