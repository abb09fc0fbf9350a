package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtsuite/timetable-core/internal/models"
	"github.com/edtsuite/timetable-core/internal/repository"
	"github.com/edtsuite/timetable-core/pkg/events"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

func newStoreFixture(t *testing.T) *Store {
	t.Helper()
	s := New(Config{UndoDepth: 10})
	require.NoError(t, s.AddTeacher(models.Teacher{Name: "Dupont"}))
	require.NoError(t, s.AddTeacher(models.Teacher{Name: "Martin"}))
	require.NoError(t, s.AddRoom(models.Room{Name: "A1", Kind: models.RoomAmphi}))
	require.NoError(t, s.AddRoom(models.Room{Name: "S1", Kind: models.RoomStandard}))
	require.NoError(t, s.AddSubject(models.Subject{
		Name:    "Math101",
		Program: "INFO1",
		Hours:   map[models.SessionType]float64{models.TypeLecture: 6},
	}))
	return s
}

func mathLecture() models.Session {
	return models.Session{
		Subject:  "Math101",
		Type:     models.TypeLecture,
		Program:  "INFO1",
		Group:    "G1",
		Day:      models.Monday,
		Slot:     "08:00",
		Teachers: []string{"Dupont"},
		Room:     "A1",
		HTP:      2,
	}
}

func TestStoreAddSessionAssignsMonotonicIDs(t *testing.T) {
	s := newStoreFixture(t)

	first, err := s.AddSession(mathLecture())
	require.NoError(t, err)
	second, err := s.AddSession(mathLecture())
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, "10:00", first.End, "end defaults from the slot window")
}

func TestStoreUndoRedoRoundTrip(t *testing.T) {
	s := newStoreFixture(t)

	added, err := s.AddSession(mathLecture())
	require.NoError(t, err)
	require.Len(t, s.Sessions(models.SessionFilter{}), 1)

	require.NoError(t, s.Undo())
	assert.Empty(t, s.Sessions(models.SessionFilter{}))

	require.NoError(t, s.Redo())
	restored := s.Sessions(models.SessionFilter{})
	require.Len(t, restored, 1)
	assert.Equal(t, added, restored[0])
}

func TestStoreUndoEmptyStack(t *testing.T) {
	s := newStoreFixture(t)
	err := s.Undo()
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrPreconditionFailed.Code))
}

func TestStoreNewMutationClearsRedo(t *testing.T) {
	s := newStoreFixture(t)

	_, err := s.AddSession(mathLecture())
	require.NoError(t, err)
	require.NoError(t, s.Undo())

	_, err = s.AddSession(mathLecture())
	require.NoError(t, err)

	err = s.Redo()
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrPreconditionFailed.Code))
}

func TestStoreRemoveRoomInUse(t *testing.T) {
	s := newStoreFixture(t)
	added, err := s.AddSession(mathLecture())
	require.NoError(t, err)

	err = s.RemoveRoom("A1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInUse.Code))

	require.NoError(t, s.RemoveSession(added.ID))
	require.NoError(t, s.RemoveRoom("A1"))
}

func TestStoreRemoveTeacherInUse(t *testing.T) {
	s := newStoreFixture(t)
	_, err := s.AddSession(mathLecture())
	require.NoError(t, err)

	err = s.RemoveTeacher("Dupont")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInUse.Code))
	require.NoError(t, s.RemoveTeacher("Martin"))
}

func TestStoreLockedSessionRefusesChanges(t *testing.T) {
	s := newStoreFixture(t)
	added, err := s.AddSession(mathLecture())
	require.NoError(t, err)
	require.NoError(t, s.SetSessionLock(added.ID, true))

	moved := added
	moved.Slot = "10:00"
	err = s.UpdateSession(moved)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrLocked.Code))

	err = s.RemoveSession(added.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrLocked.Code))

	require.NoError(t, s.SetSessionLock(added.ID, false))
	require.NoError(t, s.RemoveSession(added.ID))
}

func TestStoreAddSessionRejectsUnknownReferences(t *testing.T) {
	s := newStoreFixture(t)

	sess := mathLecture()
	sess.Room = "Z9"
	_, err := s.AddSession(sess)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	sess = mathLecture()
	sess.Slot = "23:00"
	_, err = s.AddSession(sess)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestStoreEvents(t *testing.T) {
	s := newStoreFixture(t)

	var mu sync.Mutex
	var seen []string
	s.Bus().SubscribeAll(func(event string, _ any) {
		mu.Lock()
		seen = append(seen, event)
		mu.Unlock()
	})

	added, err := s.AddSession(mathLecture())
	require.NoError(t, err)
	require.NoError(t, s.RemoveSession(added.ID))
	require.NoError(t, s.Undo())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, events.SessionAdded)
	assert.Contains(t, seen, events.SessionRemoved)
	assert.Contains(t, seen, events.StateUndo)
	assert.Contains(t, seen, events.UndoStack)
	assert.Contains(t, seen, events.StateChanged)
}

func TestStoreAppendSessionsSingleUndoStep(t *testing.T) {
	s := newStoreFixture(t)

	batch := []models.Session{mathLecture(), mathLecture(), mathLecture()}
	added, err := s.AppendSessions("generate sessions", batch)
	require.NoError(t, err)
	require.Len(t, added, 3)
	assert.Equal(t, int64(1), added[0].ID)
	assert.Equal(t, int64(3), added[2].ID)

	require.NoError(t, s.Undo())
	assert.Empty(t, s.Sessions(models.SessionFilter{}))
}

func TestStoreReplaceSessionsKeepsLockedPlacements(t *testing.T) {
	s := newStoreFixture(t)
	added, err := s.AddSession(mathLecture())
	require.NoError(t, err)
	require.NoError(t, s.SetSessionLock(added.ID, true))

	moved := added
	moved.Locked = true
	moved.Slot = "10:00"
	err = s.ReplaceSessions("apply optimization", []models.Session{moved})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrLocked.Code))

	same := added
	same.Locked = true
	require.NoError(t, s.ReplaceSessions("apply optimization", []models.Session{same}))
}

func TestStoreReplaceSessionsCannotDropOrReassignLocked(t *testing.T) {
	s := newStoreFixture(t)
	added, err := s.AddSession(mathLecture())
	require.NoError(t, err)
	require.NoError(t, s.SetSessionLock(added.ID, true))

	err = s.ReplaceSessions("apply optimization", nil)
	require.Error(t, err, "a locked session cannot be dropped from the replacement")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrLocked.Code))

	reassigned := added
	reassigned.Locked = true
	reassigned.Teachers = []string{"Martin"}
	err = s.ReplaceSessions("apply optimization", []models.Session{reassigned})
	require.Error(t, err, "a locked session keeps its teacher set")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrLocked.Code))

	kept, ok := s.FindSessionByID(added.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"Dupont"}, kept.Teachers)
	assert.Equal(t, "08:00", kept.Slot)
}

func TestStoreUndoDepthBound(t *testing.T) {
	s := New(Config{UndoDepth: 2})
	require.NoError(t, s.AddTeacher(models.Teacher{Name: "Dupont"}))
	require.NoError(t, s.AddRoom(models.Room{Name: "A1", Kind: models.RoomAmphi}))

	for i := 0; i < 5; i++ {
		_, err := s.AddSession(models.Session{
			Subject: "Math101",
			Type:    models.TypeLecture,
			Day:     models.Monday,
			Slot:    "08:00",
			HTP:     2,
		})
		require.NoError(t, err)
	}

	undo, redo := s.UndoDepth()
	assert.Equal(t, 2, undo)
	assert.Equal(t, 0, redo)
}

func TestStoreSetGridReportsOrphans(t *testing.T) {
	s := newStoreFixture(t)
	added, err := s.AddSession(mathLecture())
	require.NoError(t, err)

	grid := models.DefaultGrid()
	grid.Days = []models.Weekday{models.Tuesday, models.Wednesday}
	orphans, err := s.SetGrid(grid)
	require.NoError(t, err)
	assert.Equal(t, []int64{added.ID}, orphans)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	repo, err := repository.NewFileStateRepository(t.TempDir())
	require.NoError(t, err)

	s := New(Config{UndoDepth: 10, Persistence: repo})
	require.NoError(t, s.AddTeacher(models.Teacher{Name: "Dupont"}))
	require.NoError(t, s.AddRoom(models.Room{Name: "A1", Kind: models.RoomAmphi}))
	s.SetHeader(models.Header{Year: "2026-2027", Semester: models.SemesterAutumn, Department: "Informatique"})
	added, err := s.AddSession(models.Session{
		Subject:  "Math101",
		Type:     models.TypeLecture,
		Program:  "INFO1",
		Group:    "G1",
		Day:      models.Monday,
		Slot:     "08:00",
		Teachers: []string{"Dupont"},
		Room:     "A1",
		HTP:      2,
	})
	require.NoError(t, err)
	require.NoError(t, s.SaveState(context.Background(), "autumn-2026"))

	other := New(Config{UndoDepth: 10, Persistence: repo})
	require.NoError(t, other.LoadState(context.Background(), "autumn-2026"))

	restored := other.Sessions(models.SessionFilter{})
	require.Len(t, restored, 1)
	assert.Equal(t, added.ID, restored[0].ID)
	assert.Equal(t, models.SemesterAutumn, other.Header().Semester)
	assert.NotNil(t, other.FindTeacher("Dupont"))

	name, err := other.LastActiveName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "autumn-2026", name)

	// a fresh mutation after load must not leak into the saved record
	_, err = other.AddSession(models.Session{
		Subject: "Math101", Type: models.TypeLecture, Day: models.Tuesday, Slot: "10:00", HTP: 2,
	})
	require.NoError(t, err)
	require.NoError(t, other.LoadState(context.Background(), "autumn-2026"))
	assert.Len(t, other.Sessions(models.SessionFilter{}), 1)
}

func TestStoreSaveLoadCarriesExamRecords(t *testing.T) {
	repo, err := repository.NewFileStateRepository(t.TempDir())
	require.NoError(t, err)

	s := New(Config{UndoDepth: 10, Persistence: repo})
	require.NoError(t, s.AddTeacher(models.Teacher{Name: "Dupont"}))

	var mu sync.Mutex
	var seen []string
	s.Bus().SubscribeAll(func(event string, _ any) {
		mu.Lock()
		seen = append(seen, event)
		mu.Unlock()
	})

	exams := json.RawMessage(`[{"subject":"Math101","date":"2027-01-12"}]`)
	configs := json.RawMessage(`{"A1":{"rows":12}}`)
	s.SetExamRecords(exams, configs)
	require.NoError(t, s.SaveState(context.Background(), "autumn-2026"))

	other := New(Config{UndoDepth: 10, Persistence: repo})
	require.NoError(t, other.LoadState(context.Background(), "autumn-2026"))

	restored := other.Snapshot()
	assert.JSONEq(t, string(exams), string(restored.Exams))
	assert.JSONEq(t, string(configs), string(restored.ExamRoomConfigs))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, events.ExamUpdated)
}

func TestStoreLoadStateMissingKeepsCurrent(t *testing.T) {
	repo, err := repository.NewFileStateRepository(t.TempDir())
	require.NoError(t, err)

	s := New(Config{UndoDepth: 10, Persistence: repo})
	require.NoError(t, s.AddTeacher(models.Teacher{Name: "Dupont"}))

	err = s.LoadState(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrPersistence.Code))
	assert.NotNil(t, s.FindTeacher("Dupont"), "failed load keeps the pre-call state")
}
