package models

import "encoding/json"

// Header labels a named planning session.
type Header struct {
	Year       string   `json:"year"`
	Semester   Semester `json:"semester"`
	Department string   `json:"department"`
}

// State is the whole mutable world owned by the entity store. The
// store hands out deep copies only.
type State struct {
	Sessions      []Session           `json:"sessions"`
	NextSessionID int64               `json:"nextSessionId"`
	Header        Header              `json:"header"`
	Grid          TimeGrid            `json:"timeGrid"`
	Teachers      map[string]*Teacher `json:"teachers"`
	Subjects      map[string]*Subject `json:"subjects"`
	Programs      map[string]*Program `json:"programs"`
	Rooms         map[string]*Room    `json:"rooms"`
	Forfaits      []Forfait           `json:"forfaits"`
	Pools         []RoomPool          `json:"roomPools"`

	// Exam planning lives outside the core; its records ride along
	// opaquely so a save/load cycle never drops them.
	Exams           json.RawMessage `json:"exams,omitempty"`
	ExamRoomConfigs json.RawMessage `json:"examRoomConfigs,omitempty"`
}

// NewState returns an empty state over the default grid.
func NewState() *State {
	return &State{
		NextSessionID: 1,
		Grid:          DefaultGrid(),
		Teachers:      make(map[string]*Teacher),
		Subjects:      make(map[string]*Subject),
		Programs:      make(map[string]*Program),
		Rooms:         make(map[string]*Room),
	}
}

// Clone deep-copies the state; snapshots and working copies both rely
// on it.
func (s *State) Clone() *State {
	out := &State{
		Sessions:      make([]Session, 0, len(s.Sessions)),
		NextSessionID: s.NextSessionID,
		Header:        s.Header,
		Grid:          s.Grid.Clone(),
		Teachers:      make(map[string]*Teacher, len(s.Teachers)),
		Subjects:      make(map[string]*Subject, len(s.Subjects)),
		Programs:      make(map[string]*Program, len(s.Programs)),
		Rooms:         make(map[string]*Room, len(s.Rooms)),
		Forfaits:      append([]Forfait(nil), s.Forfaits...),
	}
	out.Exams = append(json.RawMessage(nil), s.Exams...)
	out.ExamRoomConfigs = append(json.RawMessage(nil), s.ExamRoomConfigs...)
	for _, sess := range s.Sessions {
		out.Sessions = append(out.Sessions, sess.Clone())
	}
	for name, t := range s.Teachers {
		copyT := *t
		copyT.Constraint = t.Constraint.Clone()
		out.Teachers[name] = &copyT
	}
	for name, subj := range s.Subjects {
		copyS := *subj
		copyS.Hours = cloneTypeFloats(subj.Hours)
		copyS.SessionLength = cloneTypeFloats(subj.SessionLength)
		copyS.Sections = cloneTypeInts(subj.Sections)
		copyS.Teachers = append([]string(nil), subj.Teachers...)
		out.Subjects[name] = &copyS
	}
	for name, p := range s.Programs {
		copyP := *p
		copyP.Exclusions = append([]string(nil), p.Exclusions...)
		out.Programs[name] = &copyP
	}
	for name, r := range s.Rooms {
		copyR := *r
		out.Rooms[name] = &copyR
	}
	for _, pool := range s.Pools {
		copyPool := pool
		copyPool.Rooms = append([]string(nil), pool.Rooms...)
		out.Pools = append(out.Pools, copyPool)
	}
	return out
}

// FindSession returns the session with the given id, or nil.
func (s *State) FindSession(id int64) *Session {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return &s.Sessions[i]
		}
	}
	return nil
}

// PoolFor returns the ordered preferred rooms for a (program, type)
// pair, or nil when no pool is declared.
func (s *State) PoolFor(program string, t SessionType) []string {
	for _, pool := range s.Pools {
		if pool.Program == program && pool.Type == t {
			return pool.Rooms
		}
	}
	return nil
}

func cloneTypeFloats(in map[SessionType]float64) map[SessionType]float64 {
	if in == nil {
		return nil
	}
	out := make(map[SessionType]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTypeInts(in map[SessionType]int) map[SessionType]int {
	if in == nil {
		return nil
	}
	out := make(map[SessionType]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SessionRecord is the persisted layout of one named planning session.
// Exam records are carried opaquely; the core never interprets them.
type SessionRecord struct {
	Sessions        []Session       `json:"sessions"`
	NextSessionID   int64           `json:"nextSessionId"`
	Header          Header          `json:"header"`
	Grid            TimeGrid        `json:"timeGrid"`
	Exams           json.RawMessage `json:"exams,omitempty"`
	ExamRoomConfigs json.RawMessage `json:"examRoomConfigs,omitempty"`
}

// GlobalRecord is the persisted layout of all non-session entities.
type GlobalRecord struct {
	Teachers map[string]*Teacher `json:"teachers"`
	Subjects map[string]*Subject `json:"subjects"`
	Programs map[string]*Program `json:"programs"`
	Rooms    map[string]*Room    `json:"rooms"`
	Forfaits []Forfait           `json:"forfaits"`
	Pools    []RoomPool          `json:"roomPools"`
}
