package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edtsuite/timetable-core/internal/dto"
	"github.com/edtsuite/timetable-core/internal/models"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

type generatorStore interface {
	Snapshot() *models.State
	AppendSessions(description string, sessions []models.Session) ([]models.Session, error)
}

// GeneratorService builds the sessions a subject's declared volumes
// still require. It works on a snapshot and commits once through the
// store.
type GeneratorService struct {
	store     generatorStore
	parser    *ConstraintParserService
	conflicts *ConflictService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGeneratorService wires generator dependencies.
func NewGeneratorService(store generatorStore, parser *ConstraintParserService, conflicts *ConflictService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GeneratorService {
	if parser == nil {
		parser = NewConstraintParserService(nil, nil, nil)
	}
	if conflicts == nil {
		conflicts = NewConflictService(parser, nil, nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeneratorService{
		store:     store,
		parser:    parser,
		conflicts: conflicts,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Generate creates the missing sessions for one subject, or for every
// subject of the active semester when opts.Subject is empty. The grid
// is searched weekday-major, slot-minor; locked sessions count as
// existing and are never touched.
func (s *GeneratorService) Generate(ctx context.Context, opts dto.GenerateOptions) (*dto.GenerateReport, error) {
	if err := s.validator.Struct(opts); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate options")
	}

	working := s.store.Snapshot()
	subjects, err := s.targetSubjects(working, opts.Subject)
	if err != nil {
		return nil, err
	}

	report := &dto.GenerateReport{}
	var created []models.Session

	for _, subj := range subjects {
		for _, sessionType := range models.SessionTypes {
			hours := subj.Hours[sessionType]
			if hours <= 0 {
				continue
			}
			length := subj.LengthFor(sessionType)
			required := int(math.Ceil(hours / length))

			for group := 1; group <= subj.SectionsFor(sessionType); group++ {
				groupLabel := fmt.Sprintf("G%d", group)
				existing := countSessions(working, subj.Name, sessionType, groupLabel)
				report.Total += required
				if existing >= required {
					report.Skipped += required
					continue
				}
				report.Skipped += existing

				for missing := required - existing; missing > 0; missing-- {
					if err := ctx.Err(); err != nil {
						return nil, appErrors.Wrap(err, appErrors.ErrCancelled.Code, appErrors.ErrCancelled.Status, "generation cancelled")
					}
					placed, sess := s.placeSession(ctx, working, subj, sessionType, groupLabel, length, opts)
					if !placed {
						report.Failed++
						report.Failures = append(report.Failures, fmt.Sprintf("%s %s %s: grid exhausted", subj.Name, sessionType, groupLabel))
						continue
					}
					created = append(created, sess)
					report.Created++
				}
			}
		}
	}

	if len(created) > 0 {
		for i := range created {
			created[i].ID = 0 // store assigns the real monotonic ids
		}
		if _, err := s.store.AppendSessions("generate sessions", created); err != nil {
			return nil, err
		}
	}
	if s.metrics != nil {
		s.metrics.GeneratorRun(report)
	}
	s.logger.Info("generation finished",
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

// placeSession scans the grid day-major for an admissible slot and
// adds the best (teacher set, room) triple there, mutating the working
// copy so later placements see it. Slots in the type's preferred band
// are tried first; the rest of the grid is the fallback.
func (s *GeneratorService) placeSession(ctx context.Context, working *models.State, subj *models.Subject, sessionType models.SessionType, group string, length float64, opts dto.GenerateOptions) (bool, models.Session) {
	band := opts.BandFor(sessionType)
	if ok, sess := s.scanSlots(ctx, working, subj, sessionType, group, length, opts, func(slot string) bool {
		return working.Grid.Classify(slot) == band
	}); ok {
		return true, sess
	}
	return s.scanSlots(ctx, working, subj, sessionType, group, length, opts, func(slot string) bool {
		return working.Grid.Classify(slot) != band
	})
}

func (s *GeneratorService) scanSlots(ctx context.Context, working *models.State, subj *models.Subject, sessionType models.SessionType, group string, length float64, opts dto.GenerateOptions, fits func(slot string) bool) (bool, models.Session) {
	for _, day := range working.Grid.Days {
		for _, slot := range working.Grid.TeachingSlots() {
			if ctx.Err() != nil {
				return false, models.Session{}
			}
			if !fits(slot) {
				continue
			}
			candidate := models.Session{
				Subject: subj.Name,
				Type:    sessionType,
				Program: subj.Program,
				Group:   group,
				Day:     day,
				Slot:    slot,
				End:     working.Grid.Slots[slot].End,
				HTP:     length,
			}

			if opts.AssignTeachers {
				teachers, ok := s.pickTeachers(working, subj, &candidate, opts)
				if !ok {
					continue
				}
				candidate.Teachers = teachers
			}
			if opts.AssignRooms {
				room, ok := s.pickRoom(working, subj.Program, sessionType, day, slot)
				if !ok && opts.AvoidConflicts {
					continue
				}
				candidate.Room = room
			}

			if opts.AvoidConflicts && len(s.conflicts.Check(working, &candidate)) > 0 {
				continue
			}

			candidate.ID = working.NextSessionID
			working.NextSessionID++
			working.Sessions = append(working.Sessions, candidate.Clone())
			return true, candidate
		}
	}
	return false, models.Session{}
}

// pickTeachers ranks the subject's teachers by compatibility score,
// then ascending daily load, and keeps the top k (teachersPerLab for
// labs, one otherwise).
func (s *GeneratorService) pickTeachers(working *models.State, subj *models.Subject, candidate *models.Session, opts dto.GenerateOptions) ([]string, bool) {
	if len(subj.Teachers) == 0 {
		return nil, true
	}

	type ranked struct {
		name  string
		score float64
		load  float64
	}
	var candidates []ranked
	for _, name := range subj.Teachers {
		teacher, ok := working.Teachers[name]
		if !ok {
			continue
		}
		score := 1.0
		if teacher.Constraint != nil {
			score = s.parser.CompatibilityScore(teacher.Constraint, candidate, working.Grid)
		}
		if opts.RespectWishes && score <= 0 {
			continue
		}
		candidates = append(candidates, ranked{
			name:  name,
			score: score,
			load:  dailyHours(working, name, candidate.Day),
		})
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].load != candidates[j].load {
			return candidates[i].load < candidates[j].load
		}
		return candidates[i].name < candidates[j].name
	})

	needed := 1
	if candidate.Type == models.TypeLab && subj.TeachersPerLab > 1 {
		needed = subj.TeachersPerLab
	}
	if needed > len(candidates) {
		needed = len(candidates)
	}
	names := make([]string, 0, needed)
	for _, c := range candidates[:needed] {
		names = append(names, c.name)
	}
	return names, true
}

// pickRoom consults the (program, type) pool first, then any free
// capability-compatible room.
func (s *GeneratorService) pickRoom(working *models.State, program string, sessionType models.SessionType, day models.Weekday, slot string) (string, bool) {
	for _, name := range working.PoolFor(program, sessionType) {
		room, ok := working.Rooms[name]
		if !ok || !s.conflicts.roomFits(sessionType, room.Kind) {
			continue
		}
		if !s.conflicts.IsRoomOccupied(working, name, day, slot) {
			return name, true
		}
	}
	free := s.conflicts.FreeRooms(working, day, slot, sessionType)
	if len(free) == 0 {
		return "", false
	}
	return free[0].Name, true
}

// targetSubjects resolves the generation scope in deterministic name
// order.
func (s *GeneratorService) targetSubjects(state *models.State, name string) ([]*models.Subject, error) {
	if name != "" {
		subj, ok := state.Subjects[name]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s not found", name))
		}
		return []*models.Subject{subj}, nil
	}

	names := make([]string, 0, len(state.Subjects))
	for subjName := range state.Subjects {
		names = append(names, subjName)
	}
	sort.Strings(names)

	var out []*models.Subject
	for _, subjName := range names {
		subj := state.Subjects[subjName]
		if state.Header.Semester != "" {
			if program, ok := state.Programs[subj.Program]; ok && program.Semester != "" && program.Semester != state.Header.Semester {
				continue
			}
		}
		out = append(out, subj)
	}
	return out, nil
}

func countSessions(state *models.State, subject string, sessionType models.SessionType, group string) int {
	count := 0
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		if sess.Subject == subject && sess.Type == sessionType && sess.Group == group {
			count++
		}
	}
	return count
}

func dailyHours(state *models.State, teacher string, day models.Weekday) float64 {
	total := 0.0
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		if sess.Day == day && sess.HasTeacher(teacher) {
			total += sess.HTP
		}
	}
	return total
}
