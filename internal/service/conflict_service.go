package service

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/edtsuite/timetable-core/internal/models"
)

// Conflict axes, in reporting order.
const (
	AxisTeacher    = "TEACHER"
	AxisRoom       = "ROOM"
	AxisCapability = "CAPABILITY"
	AxisGroup      = "GROUP"
	AxisProgram    = "PROGRAM"
	AxisConstraint = "CONSTRAINT"
)

// Conflict is one clash between a candidate placement and the current
// schedule.
type Conflict struct {
	Axis    string `json:"axis"`
	Message string `json:"message"`
}

// ConflictService enumerates clashes for candidate placements. Scans
// are linear in the schedule size.
type ConflictService struct {
	parser       *ConstraintParserService
	capabilities map[models.SessionType][]models.RoomKind
	logger       *zap.Logger
}

// NewConflictService wires the service; capability tagging defaults to
// labs in lab rooms, tutorials in standard or lab rooms, lectures in
// amphitheaters.
func NewConflictService(parser *ConstraintParserService, capabilities map[models.SessionType][]models.RoomKind, logger *zap.Logger) *ConflictService {
	if parser == nil {
		parser = NewConstraintParserService(nil, nil, nil)
	}
	if capabilities == nil {
		capabilities = map[models.SessionType][]models.RoomKind{
			models.TypeLecture:  {models.RoomAmphi},
			models.TypeTutorial: {models.RoomStandard, models.RoomLab},
			models.TypeLab:      {models.RoomLab},
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{parser: parser, capabilities: capabilities, logger: logger}
}

// Check returns the ordered conflicts of a candidate placement against
// the state's schedule. The candidate's own id is excluded from scans,
// so a placed session can be re-checked in place.
func (s *ConflictService) Check(state *models.State, candidate *models.Session) []Conflict {
	var conflicts []Conflict

	for _, teacher := range candidate.Teachers {
		for i := range state.Sessions {
			other := &state.Sessions[i]
			if other.ID == candidate.ID || other.Day != candidate.Day || other.Slot != candidate.Slot {
				continue
			}
			if other.HasTeacher(teacher) {
				conflicts = append(conflicts, Conflict{
					Axis:    AxisTeacher,
					Message: fmt.Sprintf("teacher %s already teaches %s (%s) at %s %s", teacher, other.Subject, other.Type, candidate.Day, candidate.Slot),
				})
			}
		}
	}

	if candidate.Room != "" {
		for i := range state.Sessions {
			other := &state.Sessions[i]
			if other.ID == candidate.ID || other.Day != candidate.Day || other.Slot != candidate.Slot {
				continue
			}
			if other.Room == candidate.Room {
				conflicts = append(conflicts, Conflict{
					Axis:    AxisRoom,
					Message: fmt.Sprintf("room %s already hosts %s (%s) at %s %s", candidate.Room, other.Subject, other.Type, candidate.Day, candidate.Slot),
				})
			}
		}
		if room, ok := state.Rooms[candidate.Room]; ok && !s.roomFits(candidate.Type, room.Kind) {
			conflicts = append(conflicts, Conflict{
				Axis:    AxisCapability,
				Message: fmt.Sprintf("room %s (%s) cannot host a %s session", room.Name, room.Kind, candidate.Type),
			})
		}
	}

	for i := range state.Sessions {
		other := &state.Sessions[i]
		if other.ID == candidate.ID || other.Day != candidate.Day || other.Slot != candidate.Slot {
			continue
		}
		if other.Program == candidate.Program && other.Group == candidate.Group {
			conflicts = append(conflicts, Conflict{
				Axis:    AxisGroup,
				Message: fmt.Sprintf("group %s/%s already attends %s (%s) at %s %s", candidate.Program, candidate.Group, other.Subject, other.Type, candidate.Day, candidate.Slot),
			})
		}
	}

	if program, ok := state.Programs[candidate.Program]; ok {
		for i := range state.Sessions {
			other := &state.Sessions[i]
			if other.ID == candidate.ID || other.Day != candidate.Day || other.Slot != candidate.Slot {
				continue
			}
			if !program.Excludes(other.Program) {
				continue
			}
			if sharesResource(candidate, other) {
				conflicts = append(conflicts, Conflict{
					Axis:    AxisProgram,
					Message: fmt.Sprintf("programs %s and %s exclude each other at %s %s", candidate.Program, other.Program, candidate.Day, candidate.Slot),
				})
			}
		}
	}

	for _, teacher := range candidate.Teachers {
		t, ok := state.Teachers[teacher]
		if !ok || t.Constraint == nil {
			continue
		}
		for _, violation := range s.parser.ValidateSession(t.Constraint, candidate, state.Grid) {
			conflicts = append(conflicts, Conflict{
				Axis:    AxisConstraint,
				Message: fmt.Sprintf("teacher %s: %s", teacher, violation),
			})
		}
		if t.Constraint.MaxHoursPerDay > 0 {
			hours := candidate.HTP
			for i := range state.Sessions {
				other := &state.Sessions[i]
				if other.ID != candidate.ID && other.Day == candidate.Day && other.HasTeacher(teacher) {
					hours += other.HTP
				}
			}
			if hours > float64(t.Constraint.MaxHoursPerDay) {
				conflicts = append(conflicts, Conflict{
					Axis:    AxisConstraint,
					Message: fmt.Sprintf("teacher %s: %.1fh on %s exceeds daily maximum of %dh", teacher, hours, candidate.Day, t.Constraint.MaxHoursPerDay),
				})
			}
		}
	}

	return conflicts
}

// IsRoomOccupied reports whether any session holds the room at the
// given day and slot.
func (s *ConflictService) IsRoomOccupied(state *models.State, room string, day models.Weekday, slot string) bool {
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		if sess.Room == room && sess.Day == day && sess.Slot == slot {
			return true
		}
	}
	return false
}

// FreeRooms returns capability-compatible rooms unoccupied at the
// given day and slot, sorted by name.
func (s *ConflictService) FreeRooms(state *models.State, day models.Weekday, slot string, t models.SessionType) []models.Room {
	var out []models.Room
	for _, room := range state.Rooms {
		if !s.roomFits(t, room.Kind) {
			continue
		}
		if s.IsRoomOccupied(state, room.Name, day, slot) {
			continue
		}
		out = append(out, *room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *ConflictService) roomFits(t models.SessionType, kind models.RoomKind) bool {
	for _, allowed := range s.capabilities[t] {
		if allowed == kind {
			return true
		}
	}
	return false
}

// sharesResource reports whether two placements rely on a common
// teacher or room.
func sharesResource(a, b *models.Session) bool {
	if a.Room != "" && a.Room == b.Room {
		return true
	}
	for _, teacher := range a.Teachers {
		if b.HasTeacher(teacher) {
			return true
		}
	}
	return false
}
