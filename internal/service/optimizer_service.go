package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edtsuite/timetable-core/internal/dto"
	"github.com/edtsuite/timetable-core/internal/models"
	"github.com/edtsuite/timetable-core/internal/store"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

const (
	defaultMaxSteps  = 500
	defaultTolerance = 0.01
)

type optimizerStore interface {
	Snapshot() *models.State
	ReplaceSessions(description string, sessions []models.Session) error
}

// OptimizerService runs a greedy local search over session placements.
// Optimize is a dry run; the caller commits a result it likes through
// ApplyOptimized.
type OptimizerService struct {
	store     optimizerStore
	conflicts *ConflictService
	parser    *ConstraintParserService
	metrics   *MetricsService
	validator *validator.Validate
	clock     store.Clock
	logger    *zap.Logger
}

// NewOptimizerService wires optimizer dependencies.
func NewOptimizerService(st optimizerStore, conflicts *ConflictService, parser *ConstraintParserService, metrics *MetricsService, validate *validator.Validate, clock store.Clock, logger *zap.Logger) *OptimizerService {
	if parser == nil {
		parser = NewConstraintParserService(nil, nil, nil)
	}
	if conflicts == nil {
		conflicts = NewConflictService(parser, nil, nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if clock == nil {
		clock = store.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimizerService{
		store:     st,
		conflicts: conflicts,
		parser:    parser,
		metrics:   metrics,
		validator: validate,
		clock:     clock,
		logger:    logger,
	}
}

// Optimize sweeps the movable sessions, applying for each the best
// relocation or swap that improves the schedule score, until a full
// sweep improves by less than the tolerance or a limit is hit. Locked
// sessions never move. The store is not touched.
func (s *OptimizerService) Optimize(ctx context.Context, opts dto.OptimizeOptions) (*dto.OptimizeResult, error) {
	if err := s.validator.Struct(opts); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimize options")
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultTolerance
	}

	started := s.clock.Now()
	working := s.store.Snapshot()
	current := s.Stats(working, opts)

	result := &dto.OptimizeResult{
		RunID:        uuid.NewString(),
		CurrentStats: current,
	}

	best := current
	for {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCancelled.Code, appErrors.ErrCancelled.Status, "optimization cancelled")
		}
		improved, steps, stopped := s.sweep(ctx, working, opts, &best, result.Steps, started)
		result.Steps = steps
		if stopped || !improved || result.Steps >= opts.MaxSteps {
			break
		}
	}

	result.OptimizedStats = best
	result.OptimizedSessions = cloneSessions(working.Sessions)
	result.Success = best.Score > current.Score
	result.Improvement = dto.Improvement{
		Score:      best.Score - current.Score,
		Conflicts:  current.Conflicts - best.Conflicts,
		Gaps:       current.Gaps - best.Gaps,
		Clustering: best.Clustering - current.Clustering,
		Variance:   best.Variance - current.Variance,
	}
	if s.metrics != nil {
		s.metrics.OptimizerRun(result, s.clock.Now().Sub(started))
	}
	s.logger.Info("optimization finished",
		zap.String("runId", result.RunID),
		zap.Int("steps", result.Steps),
		zap.Float64("score", best.Score),
		zap.Float64("gain", result.Improvement.Score))
	return result, nil
}

// ApplyOptimized commits a dry-run result as one undoable replacement.
func (s *OptimizerService) ApplyOptimized(result *dto.OptimizeResult) error {
	if result == nil || len(result.OptimizedSessions) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "empty optimization result")
	}
	return s.store.ReplaceSessions(fmt.Sprintf("apply optimization %s", result.RunID), result.OptimizedSessions)
}

// sweep tries every movable session once, keeping the single best
// admissible change per session. Returns whether the sweep's
// cumulative gain beat the tolerance, the updated step count, and
// whether a limit cut it short.
func (s *OptimizerService) sweep(ctx context.Context, working *models.State, opts dto.OptimizeOptions, best *dto.ScheduleStats, steps int, started time.Time) (bool, int, bool) {
	startScore := best.Score
	for _, idx := range s.sweepOrder(working, opts) {
		if ctx.Err() != nil || steps >= opts.MaxSteps {
			return best.Score > startScore+opts.Tolerance, steps, true
		}
		if opts.Budget > 0 && s.clock.Now().Sub(started) >= opts.Budget {
			return best.Score > startScore+opts.Tolerance, steps, true
		}
		if working.Sessions[idx].Locked {
			continue
		}
		stats, changed := s.bestChange(working, idx, opts, *best)
		if !changed {
			continue
		}
		steps++
		*best = stats
	}
	return best.Score > startScore+opts.Tolerance, steps, false
}

// bestChange evaluates every relocation and swap for one session and
// applies the highest-scoring admissible one, when it does not worsen
// the schedule.
func (s *OptimizerService) bestChange(working *models.State, idx int, opts dto.OptimizeOptions, current dto.ScheduleStats) (dto.ScheduleStats, bool) {
	origin := working.Sessions[idx].Clone()
	bestStats := current
	bestDay, bestSlot := origin.Day, origin.Slot
	bestSwap := -1

	for _, day := range working.Grid.Days {
		for _, slot := range working.Grid.TeachingSlots() {
			if day == origin.Day && slot == origin.Slot {
				continue
			}
			s.relocate(working, idx, day, slot)
			if s.admissible(working, idx, opts) {
				if stats := s.Stats(working, opts); stats.Score > bestStats.Score {
					bestStats, bestDay, bestSlot, bestSwap = stats, day, slot, -1
				}
			}
			s.relocate(working, idx, origin.Day, origin.Slot)
		}
	}

	for other := range working.Sessions {
		if other == idx || working.Sessions[other].Locked {
			continue
		}
		s.swap(working, idx, other)
		if s.admissible(working, idx, opts) && s.admissible(working, other, opts) {
			if stats := s.Stats(working, opts); stats.Score > bestStats.Score {
				bestStats, bestSwap = stats, other
			}
		}
		s.swap(working, idx, other)
	}

	if bestStats.Score <= current.Score {
		return current, false
	}
	if bestSwap >= 0 {
		s.swap(working, idx, bestSwap)
	} else {
		s.relocate(working, idx, bestDay, bestSlot)
	}
	return bestStats, true
}

func (s *OptimizerService) relocate(working *models.State, idx int, day models.Weekday, slot string) {
	sess := &working.Sessions[idx]
	sess.Day = day
	sess.Slot = slot
	sess.End = working.Grid.Slots[slot].End
}

func (s *OptimizerService) swap(working *models.State, i, j int) {
	a, b := &working.Sessions[i], &working.Sessions[j]
	a.Day, b.Day = b.Day, a.Day
	a.Slot, b.Slot = b.Slot, a.Slot
	a.End, b.End = b.End, a.End
}

// admissible enforces the hard side conditions on a tentative
// placement: latest end time, teacher minimum breaks, serialized labs,
// teacher hard constraints, and no new resource clashes when existing
// placements are to be respected.
func (s *OptimizerService) admissible(working *models.State, idx int, opts dto.OptimizeOptions) bool {
	sess := &working.Sessions[idx]

	if opts.MaxEndTime != "" {
		limit, err := models.MinuteOfDay(opts.MaxEndTime)
		if err == nil {
			if end, err := models.MinuteOfDay(sess.End); err == nil && end > limit {
				return false
			}
		}
	}

	if opts.MinBreak > 0 && !s.minBreakOK(working, sess, opts.MinBreak) {
		return false
	}

	if len(opts.NoConcurrentLab) > 0 && sess.Type == models.TypeLab && containsName(opts.NoConcurrentLab, sess.Subject) {
		for i := range working.Sessions {
			other := &working.Sessions[i]
			if other.ID == sess.ID || other.Type != models.TypeLab {
				continue
			}
			if other.Day == sess.Day && other.Slot == sess.Slot && containsName(opts.NoConcurrentLab, other.Subject) {
				return false
			}
		}
	}

	if opts.RespectConstraints {
		for _, name := range sess.Teachers {
			teacher, ok := working.Teachers[name]
			if !ok || teacher.Constraint == nil {
				continue
			}
			if s.parser.CompatibilityScore(teacher.Constraint, sess, working.Grid) <= 0 {
				return false
			}
		}
	}

	if opts.RespectExisting {
		for _, c := range s.conflicts.Check(working, sess) {
			if c.Axis != AxisConstraint {
				return false
			}
		}
	}
	return true
}

// minBreakOK checks that each of the session's teachers keeps at least
// the given idle minutes between consecutive sessions that day.
func (s *OptimizerService) minBreakOK(working *models.State, sess *models.Session, minBreak int) bool {
	for _, name := range sess.Teachers {
		type span struct{ start, end int }
		var spans []span
		for i := range working.Sessions {
			other := &working.Sessions[i]
			if other.Day != sess.Day || !other.HasTeacher(name) {
				continue
			}
			start, err := models.MinuteOfDay(working.Grid.Slots[other.Slot].Start)
			if err != nil {
				continue
			}
			end, err := models.MinuteOfDay(other.End)
			if err != nil {
				continue
			}
			spans = append(spans, span{start, end})
		}
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		for i := 1; i < len(spans); i++ {
			idle := spans[i].start - spans[i-1].end
			if idle > 0 && idle < minBreak {
				return false
			}
		}
	}
	return true
}

// Stats scores a schedule as a weighted mean of normalized terms in
// [0,100]: conflict cleanliness always counts double, the other terms
// only when their option is enabled.
func (s *OptimizerService) Stats(state *models.State, opts dto.OptimizeOptions) dto.ScheduleStats {
	stats := dto.ScheduleStats{}
	stats.Conflicts = s.countConflicts(state, opts)
	stats.Gaps = s.countGaps(state)
	stats.Clustering = s.clusteringTerm(state, opts)
	stats.Variance = s.varianceTerm(state, opts)
	stats.SlotBonus = s.slotBonusTerm(state, opts)

	conflictTerm := clampTerm(100 - float64(stats.Conflicts)*25)
	gapTerm := clampTerm(100 - float64(stats.Gaps)*10)

	sum := conflictTerm * 2
	weight := 2.0
	if opts.RemoveGaps {
		sum += gapTerm
		weight++
	}
	if opts.GroupSubjects {
		sum += stats.Clustering
		weight++
	}
	if opts.BalanceLoad {
		sum += stats.Variance
		weight++
	}
	if opts.PreferredSlots {
		sum += stats.SlotBonus
		weight++
	}
	stats.Score = sum / weight
	return stats
}

func (s *OptimizerService) countConflicts(state *models.State, opts dto.OptimizeOptions) int {
	pairwise, single := 0, 0
	for i := range state.Sessions {
		for _, c := range s.conflicts.Check(state, &state.Sessions[i]) {
			switch c.Axis {
			case AxisConstraint:
				if opts.RespectConstraints {
					single++
				}
			case AxisCapability:
				single++
			default:
				pairwise++
			}
		}
	}
	// teacher, room, group and program clashes are seen from both of
	// their sessions; capability and constraint clashes only from one
	return pairwise/2 + single
}

// countGaps sums the idle teaching slots sitting between the first and
// last session of each teacher and each group, per day.
func (s *OptimizerService) countGaps(state *models.State) int {
	index := make(map[string]int)
	for i, key := range state.Grid.TeachingSlots() {
		index[key] = i
	}

	occupied := make(map[string]map[int]bool)
	mark := func(owner string, day models.Weekday, slot string) {
		pos, ok := index[slot]
		if !ok {
			return
		}
		key := string(day) + "|" + owner
		if occupied[key] == nil {
			occupied[key] = make(map[int]bool)
		}
		occupied[key][pos] = true
	}
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		mark("grp:"+sess.Program+"/"+sess.Group, sess.Day, sess.Slot)
		for _, teacher := range sess.Teachers {
			mark("tea:"+teacher, sess.Day, sess.Slot)
		}
	}

	gaps := 0
	for _, slots := range occupied {
		lo, hi := -1, -1
		for pos := range slots {
			if lo < 0 || pos < lo {
				lo = pos
			}
			if pos > hi {
				hi = pos
			}
		}
		gaps += (hi - lo + 1) - len(slots)
	}
	return gaps
}

// clusteringTerm is the share of sessions keeping company with another
// session of the same subject, per the grouping strategy.
func (s *OptimizerService) clusteringTerm(state *models.State, opts dto.OptimizeOptions) float64 {
	if len(state.Sessions) == 0 {
		return 100
	}
	index := make(map[string]int)
	for i, key := range state.Grid.TeachingSlots() {
		index[key] = i
	}

	clustered := 0
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		for j := range state.Sessions {
			other := &state.Sessions[j]
			if i == j || other.Subject != sess.Subject || other.Program != sess.Program || other.Day != sess.Day {
				continue
			}
			if opts.GroupingStrategy == dto.GroupConsecutive {
				di := index[sess.Slot] - index[other.Slot]
				if di != 1 && di != -1 {
					continue
				}
			}
			clustered++
			break
		}
	}
	return 100 * float64(clustered) / float64(len(state.Sessions))
}

// varianceTerm inverts the average per-group variance of daily teaching
// hours, so a perfectly even week scores 100. Daily deviations at or
// below the load tolerance do not count against the schedule.
func (s *OptimizerService) varianceTerm(state *models.State, opts dto.OptimizeOptions) float64 {
	loads := make(map[string]map[models.Weekday]float64)
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		key := sess.Program + "/" + sess.Group
		if loads[key] == nil {
			loads[key] = make(map[models.Weekday]float64)
		}
		loads[key][sess.Day] += sess.HTP
	}
	if len(loads) == 0 {
		return 100
	}

	days := float64(len(state.Grid.Days))
	total := 0.0
	for _, perDay := range loads {
		sum := 0.0
		for _, h := range perDay {
			sum += h
		}
		mean := sum / days
		varSum := 0.0
		for _, day := range state.Grid.Days {
			d := perDay[day] - mean
			if d < 0 {
				d = -d
			}
			d -= opts.LoadTolerance
			if d < 0 {
				d = 0
			}
			varSum += d * d
		}
		total += 100 / (1 + varSum/days)
	}
	return total / float64(len(loads))
}

// slotBonusTerm is the share of sessions sitting in the preferred
// time-of-day band for their type.
func (s *OptimizerService) slotBonusTerm(state *models.State, opts dto.OptimizeOptions) float64 {
	if len(state.Sessions) == 0 {
		return 100
	}
	matched := 0
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		if state.Grid.Classify(sess.Slot) == opts.BandFor(sess.Type) {
			matched++
		}
	}
	return 100 * float64(matched) / float64(len(state.Sessions))
}

func (s *OptimizerService) sweepOrder(state *models.State, opts dto.OptimizeOptions) []int {
	rank := make(map[string]int, len(opts.ProgramOrder))
	for i, name := range opts.ProgramOrder {
		rank[name] = i
	}
	order := make([]int, len(state.Sessions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := &state.Sessions[order[a]], &state.Sessions[order[b]]
		ra, oka := rank[sa.Program]
		rb, okb := rank[sb.Program]
		if oka != okb {
			return oka
		}
		if oka && ra != rb {
			return ra < rb
		}
		return sa.ID < sb.ID
	})
	return order
}

func clampTerm(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func cloneSessions(sessions []models.Session) []models.Session {
	out := make([]models.Session, len(sessions))
	for i := range sessions {
		out[i] = sessions[i].Clone()
	}
	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
