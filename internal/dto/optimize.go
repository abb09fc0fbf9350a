package dto

import (
	"time"

	"github.com/edtsuite/timetable-core/internal/models"
)

// Grouping strategies for subject clustering.
const (
	GroupSameDay     = "same-day"
	GroupConsecutive = "consecutive"
)

// OptimizeOptions tunes the local search.
type OptimizeOptions struct {
	RemoveGaps     bool    `json:"removeGaps"`
	BalanceLoad    bool    `json:"balanceLoad"`
	GroupSubjects  bool    `json:"groupSubjects"`
	PreferredSlots bool    `json:"preferredSlots"`
	LoadTolerance  float64 `json:"loadTolerance" validate:"omitempty,min=0"`
	MinBreak       int     `json:"minBreak" validate:"omitempty,min=0"` // minutes
	MaxEndTime     string  `json:"maxEndTime"`                          // HH:MM, empty = none

	RespectExisting    bool `json:"respectExisting"`
	RespectConstraints bool `json:"respectConstraints"`

	// Preferred time-of-day band per session type.
	CMSlot models.TimeOfDay `json:"cmSlot"`
	TDSlot models.TimeOfDay `json:"tdSlot"`
	TPSlot models.TimeOfDay `json:"tpSlot"`

	GroupingStrategy string   `json:"groupingStrategy" validate:"omitempty,oneof=same-day consecutive"`
	NoConcurrentLab  []string `json:"noConcurrentLab,omitempty"` // subject names
	ProgramOrder     []string `json:"programOrder,omitempty"`

	MaxSteps  int           `json:"maxSteps" validate:"omitempty,min=1"`
	Budget    time.Duration `json:"budget"`
	Tolerance float64       `json:"tolerance" validate:"omitempty,min=0"`
}

// BandFor returns the preferred band for a type, with the classic
// defaults: lectures in the morning, labs in the afternoon.
func (o OptimizeOptions) BandFor(t models.SessionType) models.TimeOfDay {
	return bandFor(t, o.CMSlot, o.TDSlot, o.TPSlot)
}

func bandFor(t models.SessionType, cm, td, tp models.TimeOfDay) models.TimeOfDay {
	switch t {
	case models.TypeLecture:
		if cm != "" {
			return cm
		}
		return models.Morning
	case models.TypeTutorial:
		if td != "" {
			return td
		}
		return models.Morning
	default:
		if tp != "" {
			return tp
		}
		return models.Afternoon
	}
}

// ScheduleStats is the normalized five-term breakdown of a schedule,
// each term in [0,100].
type ScheduleStats struct {
	Score      float64 `json:"score"`
	Conflicts  int     `json:"conflicts"`
	Gaps       int     `json:"gaps"`
	Clustering float64 `json:"clustering"`
	Variance   float64 `json:"variance"`
	SlotBonus  float64 `json:"slotBonus"`
}

// Improvement reports deltas between current and optimized stats.
type Improvement struct {
	Score      float64 `json:"score"`
	Conflicts  int     `json:"conflicts"`
	Gaps       int     `json:"gaps"`
	Clustering float64 `json:"clustering"`
	Variance   float64 `json:"variance"`
}

// OptimizeResult is a dry candidate; ApplyOptimized commits it.
type OptimizeResult struct {
	RunID             string           `json:"runId"`
	Success           bool             `json:"success"`
	Steps             int              `json:"steps"`
	CurrentStats      ScheduleStats    `json:"currentStats"`
	OptimizedStats    ScheduleStats    `json:"optimizedStats"`
	Improvement       Improvement      `json:"improvement"`
	OptimizedSessions []models.Session `json:"optimizedSessions"`
}
