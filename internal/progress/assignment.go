package progress

import (
	"slices"
	"time"

	"github.com/umadex/umadex-backend/internal/apperror"
)

// AssignmentStatus values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

var ErrInvalidUnitIndex = apperror.New(apperror.KindValidation, "INVALID_UNIT_INDEX", "unit index is outside the assignment")

// AssignmentState is a student's rollup over one assignment. Unit indexes
// are 1-based.
type AssignmentState struct {
	CurrentUnitIndex    int
	TotalUnitsCompleted int
	DifficultyLevel     int
	UnitsCompleted      []int
	Status              string
	CompletedAt         *time.Time
}

// NewAssignmentState starts a student on unit 1 at the given difficulty.
func NewAssignmentState(initialDifficulty int) (AssignmentState, error) {
	level, err := InitialDifficulty(initialDifficulty)
	if err != nil {
		return AssignmentState{}, err
	}
	return AssignmentState{
		CurrentUnitIndex: 1,
		DifficultyLevel:  level,
		UnitsCompleted:   []int{},
		Status:           StatusInProgress,
	}, nil
}

// Rollup is the result of recording one unit completion.
type Rollup struct {
	AlreadyTracked      bool
	AssignmentCompleted bool
}

// CompleteUnit records that unitIndex finished. Recording a unit that is
// already tracked changes nothing, and completion is stamped once.
func CompleteUnit(a *AssignmentState, unitIndex, totalUnits int, now time.Time) (Rollup, error) {
	if unitIndex < 1 || unitIndex > totalUnits {
		return Rollup{}, ErrInvalidUnitIndex.Withf("unit %d of %d", unitIndex, totalUnits)
	}
	if slices.Contains(a.UnitsCompleted, unitIndex) {
		return Rollup{AlreadyTracked: true}, nil
	}

	a.UnitsCompleted = append(a.UnitsCompleted, unitIndex)
	slices.Sort(a.UnitsCompleted)
	a.TotalUnitsCompleted = len(a.UnitsCompleted)
	a.CurrentUnitIndex = unitIndex + 1

	var r Rollup
	if a.CurrentUnitIndex > totalUnits && a.CompletedAt == nil {
		at := now
		a.CompletedAt = &at
		a.Status = StatusCompleted
		r.AssignmentCompleted = true
	}
	return r, nil
}
