package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtsuite/timetable-core/internal/dto"
	"github.com/edtsuite/timetable-core/internal/models"
	"github.com/edtsuite/timetable-core/internal/store"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

func newOptimizerFixture(t *testing.T) (*store.Store, *OptimizerService) {
	t.Helper()
	st := store.New(store.Config{UndoDepth: 10})
	require.NoError(t, st.AddTeacher(models.Teacher{Name: "Dupont"}))
	require.NoError(t, st.AddRoom(models.Room{Name: "A1", Kind: models.RoomAmphi}))
	require.NoError(t, st.AddRoom(models.Room{Name: "A2", Kind: models.RoomAmphi}))

	parser := NewConstraintParserService(nil, nil, nil)
	conflicts := NewConflictService(parser, nil, nil)
	opt := NewOptimizerService(st, conflicts, parser, nil, nil, nil, nil)
	return st, opt
}

func placeLecture(t *testing.T, st *store.Store, day models.Weekday, slot, room string) models.Session {
	t.Helper()
	sess, err := st.AddSession(models.Session{
		Subject:  "Math101",
		Type:     models.TypeLecture,
		Program:  "INFO1",
		Group:    "G1",
		Day:      day,
		Slot:     slot,
		Teachers: []string{"Dupont"},
		Room:     room,
		HTP:      2,
	})
	require.NoError(t, err)
	return sess
}

func TestOptimizeRemovesGaps(t *testing.T) {
	st, opt := newOptimizerFixture(t)
	placeLecture(t, st, models.Monday, "08:00", "A1")
	placeLecture(t, st, models.Monday, "14:00", "A1")

	result, err := opt.Optimize(context.Background(), dto.OptimizeOptions{
		RemoveGaps:      true,
		RespectExisting: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Greater(t, result.Steps, 0)
	assert.Equal(t, 2, result.CurrentStats.Gaps, "one idle slot counted for the teacher and for the group")
	assert.Zero(t, result.OptimizedStats.Gaps)
	assert.Greater(t, result.OptimizedStats.Score, result.CurrentStats.Score)

	// the store is untouched until the result is applied
	assert.Len(t, st.Sessions(models.SessionFilter{Slot: "08:00"}), 1)

	require.NoError(t, opt.ApplyOptimized(result))
	assert.Empty(t, st.Sessions(models.SessionFilter{Slot: "08:00"}))
	assert.Len(t, st.Sessions(models.SessionFilter{Slot: "10:00"}), 1, "the early session slides next to its neighbour")
	assert.Len(t, st.Sessions(models.SessionFilter{Slot: "14:00"}), 1)
}

func TestOptimizeIsMonotone(t *testing.T) {
	st, opt := newOptimizerFixture(t)
	placeLecture(t, st, models.Monday, "08:00", "A1")
	placeLecture(t, st, models.Monday, "10:00", "A1")

	result, err := opt.Optimize(context.Background(), dto.OptimizeOptions{
		RemoveGaps:      true,
		RespectExisting: true,
	})
	require.NoError(t, err)
	assert.False(t, result.Success, "an already gapless day stays put")
	assert.Zero(t, result.Steps)
	assert.GreaterOrEqual(t, result.OptimizedStats.Score, result.CurrentStats.Score)
}

func TestOptimizeNeverMovesLockedSessions(t *testing.T) {
	st, opt := newOptimizerFixture(t)
	placeLecture(t, st, models.Monday, "08:00", "A1")
	locked := placeLecture(t, st, models.Monday, "14:00", "A2")
	require.NoError(t, st.SetSessionLock(locked.ID, true))

	result, err := opt.Optimize(context.Background(), dto.OptimizeOptions{
		RemoveGaps:      true,
		RespectExisting: true,
	})
	require.NoError(t, err)

	for _, sess := range result.OptimizedSessions {
		if sess.ID == locked.ID {
			assert.Equal(t, models.Monday, sess.Day)
			assert.Equal(t, "14:00", sess.Slot)
		}
	}
	require.NoError(t, opt.ApplyOptimized(result))
	kept, ok := st.FindSessionByID(locked.ID)
	require.True(t, ok)
	assert.Equal(t, "14:00", kept.Slot)
}

func TestOptimizeHonoursMinBreak(t *testing.T) {
	st, opt := newOptimizerFixture(t)
	placeLecture(t, st, models.Monday, "08:00", "A1")
	placeLecture(t, st, models.Monday, "14:00", "A1")

	result, err := opt.Optimize(context.Background(), dto.OptimizeOptions{
		RemoveGaps:      true,
		RespectExisting: true,
		MinBreak:        180,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	// 10:00-12:00 would leave a 120min break before 14:00; the only
	// admissible gapless placement is back-to-back at 16:00
	slots := map[string]bool{}
	for _, sess := range result.OptimizedSessions {
		slots[sess.Slot] = true
	}
	assert.True(t, slots["14:00"] && slots["16:00"], "expected 14:00+16:00, got %v", slots)
}

func TestOptimizePrefersTypeBands(t *testing.T) {
	st, opt := newOptimizerFixture(t)
	placeLecture(t, st, models.Monday, "16:00", "A1")

	result, err := opt.Optimize(context.Background(), dto.OptimizeOptions{
		PreferredSlots:  true,
		RespectExisting: true,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.OptimizedSessions, 1)

	grid := st.Grid()
	assert.Equal(t, models.Morning, grid.Classify(result.OptimizedSessions[0].Slot), "lectures gravitate to their morning band")
}

func TestOptimizeCancelledContext(t *testing.T) {
	st, opt := newOptimizerFixture(t)
	placeLecture(t, st, models.Monday, "08:00", "A1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := opt.Optimize(ctx, dto.OptimizeOptions{RemoveGaps: true})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCancelled.Code))
	assert.Len(t, st.Sessions(models.SessionFilter{}), 1, "cancellation leaves the store untouched")
}

func TestOptimizeApplyEmptyResult(t *testing.T) {
	_, opt := newOptimizerFixture(t)

	err := opt.ApplyOptimized(&dto.OptimizeResult{})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestStatsCountsConflictsAndGaps(t *testing.T) {
	_, opt := newOptimizerFixture(t)

	state := models.NewState()
	state.Teachers["Dupont"] = &models.Teacher{Name: "Dupont"}
	state.Sessions = []models.Session{
		{ID: 1, Subject: "Math101", Type: models.TypeLecture, Program: "INFO1", Group: "G1", Day: models.Monday, Slot: "08:00", End: "10:00", Teachers: []string{"Dupont"}, HTP: 2},
		{ID: 2, Subject: "Phys101", Type: models.TypeLecture, Program: "MATH1", Group: "G1", Day: models.Monday, Slot: "08:00", End: "10:00", Teachers: []string{"Dupont"}, HTP: 2},
	}

	stats := opt.Stats(state, dto.OptimizeOptions{})
	assert.Equal(t, 1, stats.Conflicts, "one teacher clash counted once")
	assert.Zero(t, stats.Gaps)
	assert.Less(t, stats.Score, 100.0)
}

func TestStatsCountsOneSidedConflicts(t *testing.T) {
	_, opt := newOptimizerFixture(t)

	state := models.NewState()
	state.Teachers["Dupont"] = &models.Teacher{Name: "Dupont"}
	state.Rooms["L1"] = &models.Room{Name: "L1", Kind: models.RoomLab}
	state.Sessions = []models.Session{
		{ID: 1, Subject: "Math101", Type: models.TypeLecture, Program: "INFO1", Group: "G1", Day: models.Monday, Slot: "08:00", End: "10:00", Teachers: []string{"Dupont"}, Room: "L1", HTP: 2},
	}

	stats := opt.Stats(state, dto.OptimizeOptions{})
	assert.Equal(t, 1, stats.Conflicts, "a lecture in a lab room is one capability clash")
	assert.Less(t, stats.Score, 100.0)

	parser := NewConstraintParserService(nil, nil, nil)
	state.Teachers["Dupont"].Constraint = parser.Parse("Dupont", "Pas le lundi")
	stats = opt.Stats(state, dto.OptimizeOptions{RespectConstraints: true})
	assert.Equal(t, 2, stats.Conflicts, "the violated unavailability adds a second clash")
}

func TestStatsHonoursLoadTolerance(t *testing.T) {
	_, opt := newOptimizerFixture(t)

	state := models.NewState()
	state.Sessions = []models.Session{
		{ID: 1, Subject: "Math101", Type: models.TypeLecture, Program: "INFO1", Group: "G1", Day: models.Monday, Slot: "08:00", End: "10:00", HTP: 2},
		{ID: 2, Subject: "Phys101", Type: models.TypeLecture, Program: "INFO1", Group: "G1", Day: models.Tuesday, Slot: "08:00", End: "12:00", HTP: 4},
	}

	strict := opt.Stats(state, dto.OptimizeOptions{BalanceLoad: true})
	assert.Less(t, strict.Variance, 100.0, "uneven daily loads are penalized by default")

	relaxed := opt.Stats(state, dto.OptimizeOptions{BalanceLoad: true, LoadTolerance: 4})
	assert.Equal(t, 100.0, relaxed.Variance, "deviations within the tolerance are forgiven")
	assert.Greater(t, relaxed.Score, strict.Score)
}

func TestOptimizeStopsOnBudgetExpiry(t *testing.T) {
	st := store.New(store.Config{UndoDepth: 10})
	require.NoError(t, st.AddTeacher(models.Teacher{Name: "Dupont"}))
	require.NoError(t, st.AddRoom(models.Room{Name: "A1", Kind: models.RoomAmphi}))
	placeLecture(t, st, models.Monday, "08:00", "A1")
	placeLecture(t, st, models.Monday, "14:00", "A1")

	// every clock read advances a full second, so a millisecond budget
	// is spent before the first move is even tried
	clock := store.NewFixedClock(time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC), time.Second)
	opt := NewOptimizerService(st, nil, nil, nil, nil, clock, nil)

	result, err := opt.Optimize(context.Background(), dto.OptimizeOptions{
		RemoveGaps: true,
		Budget:     time.Millisecond,
	})
	require.NoError(t, err)
	assert.Zero(t, result.Steps)
	assert.False(t, result.Success)
	assert.Equal(t, result.CurrentStats, result.OptimizedStats, "budget expiry returns the best schedule seen so far")
}

func TestSweepToleranceIsCumulative(t *testing.T) {
	st, opt := newOptimizerFixture(t)
	require.NoError(t, st.AddTeacher(models.Teacher{Name: "Martin"}))
	placeLecture(t, st, models.Monday, "08:00", "A1")
	placeLecture(t, st, models.Monday, "14:00", "A1")
	for _, slot := range []string{"08:00", "14:00"} {
		_, err := st.AddSession(models.Session{
			Subject:  "Phys101",
			Type:     models.TypeLecture,
			Program:  "INFO1",
			Group:    "G1",
			Day:      models.Tuesday,
			Slot:     slot,
			Teachers: []string{"Martin"},
			Room:     "A2",
			HTP:      2,
		})
		require.NoError(t, err)
	}

	working := st.Snapshot()
	opts := dto.OptimizeOptions{RemoveGaps: true, RespectExisting: true, MaxSteps: 500, Tolerance: 11}
	best := opt.Stats(working, opts)

	// no single move can close both teachers' and both days' gaps at
	// once, so every individual gain stays under the tolerance; only
	// the full sweep's cumulative gain clears it
	improved, steps, stopped := opt.sweep(context.Background(), working, opts, &best, 0, opt.clock.Now())
	assert.True(t, improved)
	assert.Equal(t, 2, steps)
	assert.False(t, stopped)
	assert.Zero(t, opt.Stats(working, opts).Gaps)
}
