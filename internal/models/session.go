package models

import "time"

// SessionType is the activity kind of a placed class.
type SessionType string

const (
	TypeLecture  SessionType = "CM"
	TypeTutorial SessionType = "TD"
	TypeLab      SessionType = "TP"
)

// SessionTypes lists the closed variant in canonical order.
var SessionTypes = []SessionType{TypeLecture, TypeTutorial, TypeLab}

// Semester labels the two planning cycles of a year.
type Semester string

const (
	SemesterAutumn Semester = "AUTUMN"
	SemesterSpring Semester = "SPRING"
)

// Weekday is a named day on the weekly grid.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Session is a concrete placement of a subject's activity for a group
// at a weekday/slot. Identifiers are unique and monotonically
// increasing within a semester.
type Session struct {
	ID       int64       `json:"id"`
	Subject  string      `json:"subject"`
	Type     SessionType `json:"type"`
	Program  string      `json:"program"`
	Group    string      `json:"group"`
	Day      Weekday     `json:"day"`
	Slot     string      `json:"slot"`
	End      string      `json:"end"`
	Teachers []string    `json:"teachers"`
	Room     string      `json:"room,omitempty"`
	Locked   bool        `json:"locked"`
	HTP      float64     `json:"htp"`
	Created  time.Time   `json:"created_at"`
}

// HasTeacher reports whether the session is assigned to the given
// teacher. All teacher membership checks go through here.
func (s *Session) HasTeacher(name string) bool {
	for _, t := range s.Teachers {
		if t == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Teachers = append([]string(nil), s.Teachers...)
	return out
}

// SessionFilter narrows session lookups. Zero values match everything.
type SessionFilter struct {
	Subject string
	Type    SessionType
	Program string
	Group   string
	Teacher string
	Day     Weekday
	Slot    string
	Room    string
}

// Matches reports whether the session satisfies every set field.
func (f SessionFilter) Matches(s *Session) bool {
	if f.Subject != "" && s.Subject != f.Subject {
		return false
	}
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.Program != "" && s.Program != f.Program {
		return false
	}
	if f.Group != "" && s.Group != f.Group {
		return false
	}
	if f.Teacher != "" && !s.HasTeacher(f.Teacher) {
		return false
	}
	if f.Day != "" && s.Day != f.Day {
		return false
	}
	if f.Slot != "" && s.Slot != f.Slot {
		return false
	}
	if f.Room != "" && s.Room != f.Room {
		return false
	}
	return true
}
