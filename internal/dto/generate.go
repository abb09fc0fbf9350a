package dto

import "github.com/edtsuite/timetable-core/internal/models"

// GenerateOptions instructs the generator. An empty Subject means all
// subjects of the active semester.
type GenerateOptions struct {
	Subject        string `json:"subject"`
	AssignTeachers bool   `json:"assignTeachers"`
	AssignRooms    bool   `json:"assignRooms"`
	RespectWishes  bool   `json:"respectWishes"`
	AvoidConflicts bool   `json:"avoidConflicts"`

	// Preferred time-of-day band per session type.
	CMSlot models.TimeOfDay `json:"cmSlot"`
	TDSlot models.TimeOfDay `json:"tdSlot"`
	TPSlot models.TimeOfDay `json:"tpSlot"`
}

// BandFor returns the preferred band for a type, with the classic
// defaults: lectures in the morning, labs in the afternoon.
func (o GenerateOptions) BandFor(t models.SessionType) models.TimeOfDay {
	return bandFor(t, o.CMSlot, o.TDSlot, o.TPSlot)
}

// GenerateReport summarises a generator run. Failures accumulate
// per-session messages; the run itself still succeeds.
type GenerateReport struct {
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Total    int      `json:"total"`
	Failures []string `json:"failures,omitempty"`
}
