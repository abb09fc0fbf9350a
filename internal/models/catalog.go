package models

import "time"

// Teacher is registered once by name; the scheduler only touches its
// parsed constraints via preference updates.
type Teacher struct {
	Name       string             `json:"name"`
	Remark     string             `json:"remark,omitempty"`
	Constraint *TeacherConstraint `json:"constraint,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Subject declares weekly volumes per session type, immutable within a
// planning cycle.
type Subject struct {
	Name           string                  `json:"name"`
	Program        string                  `json:"program"`
	Hours          map[SessionType]float64 `json:"hours"`          // declared weekly hours per type
	SessionLength  map[SessionType]float64 `json:"session_length"` // hours per single session
	Sections       map[SessionType]int     `json:"sections"`       // group count per type
	TeachersPerLab int                     `json:"teachers_per_lab"`
	Teachers       []string                `json:"teachers"`
}

// SectionsFor returns the group count for a type, defaulting to one.
func (s *Subject) SectionsFor(t SessionType) int {
	if n := s.Sections[t]; n > 0 {
		return n
	}
	return 1
}

// LengthFor returns the per-session hour length for a type, defaulting
// to two hours.
func (s *Subject) LengthFor(t SessionType) float64 {
	if l := s.SessionLength[t]; l > 0 {
		return l
	}
	return 2
}

// Program is a cohort of students sharing a curriculum within a
// semester. Exclusions are kept symmetric by the store.
type Program struct {
	Name       string   `json:"name"`
	Semester   Semester `json:"semester"`
	Department string   `json:"department"`
	Exclusions []string `json:"exclusions,omitempty"`
}

// Excludes reports whether the other program is in the exclusion set.
func (p *Program) Excludes(other string) bool {
	for _, name := range p.Exclusions {
		if name == other {
			return true
		}
	}
	return false
}

// RoomKind tags a room's capability.
type RoomKind string

const (
	RoomAmphi    RoomKind = "AMPHI"
	RoomStandard RoomKind = "STANDARD"
	RoomLab      RoomKind = "LAB"
)

// Room is a static catalog entry; removal is forbidden while any
// session references it.
type Room struct {
	Name string   `json:"name"`
	Kind RoomKind `json:"kind"`
}

// Forfait is a fixed hour credit outside of session-based accounting.
type Forfait struct {
	Teacher  string   `json:"teacher"`
	Hours    float64  `json:"hours"`
	Semester Semester `json:"semester"`
}

// RoomPool is a (program, type) scoped ordered list of preferred rooms
// consulted first by the generator.
type RoomPool struct {
	Program string      `json:"program"`
	Type    SessionType `json:"type"`
	Rooms   []string    `json:"rooms"`
}

// Wish carries a teacher's declared preferences: the raw remark plus
// its parsed constraint record.
type Wish struct {
	Teacher    string             `json:"teacher"`
	Raw        string             `json:"raw"`
	Constraint *TeacherConstraint `json:"constraint,omitempty"`
}
