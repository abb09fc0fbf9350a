package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edtsuite/timetable-core/internal/models"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
	"github.com/edtsuite/timetable-core/pkg/events"
)

// Persistence keys used by SaveState/LoadState.
const (
	KeyGlobal      = "global_data"
	KeyLastActive  = "last_active_session_name"
	sessionKeyStem = "session_"
)

// Persistence is the narrow contract of the storage collaborator. Load
// returns a NOT_FOUND error for missing keys.
type Persistence interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
}

// Clock is the wall-clock source; injected so tests and the optimizer
// budget stay deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock hands out times from a fixed origin, advancing by a set
// step on every read. Tests use it to pin time-based behavior such as
// the optimizer budget.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFixedClock starts a clock at origin that advances by step per
// Now call.
func NewFixedClock(origin time.Time, step time.Duration) *FixedClock {
	return &FixedClock{now: origin, step: step}
}

// Now returns the clock's current time and advances it.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Config wires the store's collaborators.
type Config struct {
	UndoDepth   int
	Bus         *events.Bus
	Persistence Persistence
	Clock       Clock
	Logger      *zap.Logger
}

// Store is the single owner of all mutable timetable state. Every
// session-mutating write pushes a deep snapshot first and emits typed
// change events synchronously after the mutation.
type Store struct {
	mu          sync.RWMutex
	state       *models.State
	history     *history
	bus         *events.Bus
	persistence Persistence
	clock       Clock
	logger      *zap.Logger
	activeName  string
}

// New builds an empty store over the default grid.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(cfg.Logger)
	}
	return &Store{
		state:       models.NewState(),
		history:     newHistory(cfg.UndoDepth),
		bus:         cfg.Bus,
		persistence: cfg.Persistence,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Bus exposes the change-event sink for subscribers.
func (s *Store) Bus() *events.Bus { return s.bus }

// --- Catalog CRUD ---

// AddTeacher registers a teacher; names are unique.
func (s *Store) AddTeacher(t models.Teacher) error {
	if strings.TrimSpace(t.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "teacher name is required")
	}
	s.mu.Lock()
	if _, exists := s.state.Teachers[t.Name]; exists {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("teacher %s already registered", t.Name))
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock.Now()
	}
	s.state.Teachers[t.Name] = &t
	s.mu.Unlock()

	s.bus.Publish(events.TeacherAdded, t)
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// RemoveTeacher deletes a teacher unless sessions still reference it.
func (s *Store) RemoveTeacher(name string) error {
	s.mu.Lock()
	if _, exists := s.state.Teachers[name]; !exists {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", name))
	}
	for i := range s.state.Sessions {
		if s.state.Sessions[i].HasTeacher(name) {
			s.mu.Unlock()
			return appErrors.Clone(appErrors.ErrInUse, fmt.Sprintf("teacher %s is assigned to session %d", name, s.state.Sessions[i].ID))
		}
	}
	delete(s.state.Teachers, name)
	s.mu.Unlock()

	s.bus.Publish(events.TeacherRemoved, name)
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// FindTeacher returns a copy of the teacher, or nil when absent.
func (s *Store) FindTeacher(name string) *models.Teacher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.Teachers[name]
	if !ok {
		return nil
	}
	out := *t
	out.Constraint = t.Constraint.Clone()
	return &out
}

// SetTeacherConstraint stores a teacher's remark with its parsed record.
func (s *Store) SetTeacherConstraint(name, remark string, constraint *models.TeacherConstraint) error {
	s.mu.Lock()
	t, ok := s.state.Teachers[name]
	if !ok {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", name))
	}
	t.Remark = remark
	t.Constraint = constraint.Clone()
	s.mu.Unlock()

	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// AddSubject registers a subject; immutable within a planning cycle.
func (s *Store) AddSubject(subj models.Subject) error {
	if strings.TrimSpace(subj.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "subject name is required")
	}
	for t, h := range subj.Hours {
		if h < 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %s: negative %s hours", subj.Name, t))
		}
	}
	s.mu.Lock()
	if _, exists := s.state.Subjects[subj.Name]; exists {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject %s already registered", subj.Name))
	}
	s.state.Subjects[subj.Name] = &subj
	s.mu.Unlock()

	s.bus.Publish(events.SubjectAdded, subj)
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// RemoveSubject deletes a subject unless sessions still reference it.
func (s *Store) RemoveSubject(name string) error {
	s.mu.Lock()
	if _, exists := s.state.Subjects[name]; !exists {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s not found", name))
	}
	for i := range s.state.Sessions {
		if s.state.Sessions[i].Subject == name {
			s.mu.Unlock()
			return appErrors.Clone(appErrors.ErrInUse, fmt.Sprintf("subject %s is placed in session %d", name, s.state.Sessions[i].ID))
		}
	}
	delete(s.state.Subjects, name)
	s.mu.Unlock()

	s.bus.Publish(events.SubjectRemoved, name)
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// AddProgram registers a program and mirrors its exclusions.
func (s *Store) AddProgram(p models.Program) error {
	if strings.TrimSpace(p.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "program name is required")
	}
	s.mu.Lock()
	if _, exists := s.state.Programs[p.Name]; exists {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("program %s already registered", p.Name))
	}
	s.state.Programs[p.Name] = &p
	for _, other := range p.Exclusions {
		if op, ok := s.state.Programs[other]; ok && !op.Excludes(p.Name) {
			op.Exclusions = append(op.Exclusions, p.Name)
		}
	}
	s.mu.Unlock()

	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// AddExclusion records a symmetric program-pair exclusion.
func (s *Store) AddExclusion(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pa, ok := s.state.Programs[a]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("program %s not found", a))
	}
	pb, ok := s.state.Programs[b]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("program %s not found", b))
	}
	if !pa.Excludes(b) {
		pa.Exclusions = append(pa.Exclusions, b)
	}
	if !pb.Excludes(a) {
		pb.Exclusions = append(pb.Exclusions, a)
	}
	return nil
}

// AddRoom registers a room in the static catalog.
func (s *Store) AddRoom(r models.Room) error {
	if strings.TrimSpace(r.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "room name is required")
	}
	s.mu.Lock()
	if _, exists := s.state.Rooms[r.Name]; exists {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("room %s already registered", r.Name))
	}
	s.state.Rooms[r.Name] = &r
	s.mu.Unlock()

	s.bus.Publish(events.RoomAdded, r)
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// RemoveRoom fails with IN_USE while any session references the room.
func (s *Store) RemoveRoom(name string) error {
	s.mu.Lock()
	if _, exists := s.state.Rooms[name]; !exists {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("room %s not found", name))
	}
	for i := range s.state.Sessions {
		if s.state.Sessions[i].Room == name {
			s.mu.Unlock()
			return appErrors.Clone(appErrors.ErrInUse, fmt.Sprintf("room %s is used by session %d", name, s.state.Sessions[i].ID))
		}
	}
	delete(s.state.Rooms, name)
	s.mu.Unlock()

	s.bus.Publish(events.RoomDeleted, name)
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// AddForfait records a fixed hour credit.
func (s *Store) AddForfait(f models.Forfait) error {
	if f.Hours <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "forfait hours must be positive")
	}
	s.mu.Lock()
	if _, ok := s.state.Teachers[f.Teacher]; !ok {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", f.Teacher))
	}
	s.state.Forfaits = append(s.state.Forfaits, f)
	s.mu.Unlock()

	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// SetRoomPool declares the ordered preferred rooms for (program, type).
func (s *Store) SetRoomPool(pool models.RoomPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Programs[pool.Program]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("program %s not found", pool.Program))
	}
	for _, room := range pool.Rooms {
		if _, ok := s.state.Rooms[room]; !ok {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("room %s not found", room))
		}
	}
	for i := range s.state.Pools {
		if s.state.Pools[i].Program == pool.Program && s.state.Pools[i].Type == pool.Type {
			s.state.Pools[i] = pool
			return nil
		}
	}
	s.state.Pools = append(s.state.Pools, pool)
	return nil
}

// --- Session lifecycle ---

// AddSession places a session, assigning the next monotonic id.
func (s *Store) AddSession(sess models.Session) (models.Session, error) {
	if err := s.validateSession(&sess); err != nil {
		return models.Session{}, err
	}

	s.mu.Lock()
	s.pushUndoLocked("add session")
	sess.ID = s.state.NextSessionID
	s.state.NextSessionID++
	if sess.Created.IsZero() {
		sess.Created = s.clock.Now()
	}
	s.state.Sessions = append(s.state.Sessions, sess.Clone())
	s.mu.Unlock()

	s.bus.Publish(events.SessionAdded, sess)
	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return sess, nil
}

// UpdateSession rewrites a placed session. Locked sessions refuse.
func (s *Store) UpdateSession(sess models.Session) error {
	if err := s.validateSession(&sess); err != nil {
		return err
	}

	s.mu.Lock()
	current := s.state.FindSession(sess.ID)
	if current == nil {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %d not found", sess.ID))
	}
	if current.Locked {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("session %d is locked", sess.ID))
	}
	s.pushUndoLocked("update session")
	sess.Created = current.Created
	*s.state.FindSession(sess.ID) = sess.Clone()
	s.mu.Unlock()

	s.bus.Publish(events.SessionUpdated, sess)
	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// RemoveSession deletes a session; locked sessions must be unlocked
// first.
func (s *Store) RemoveSession(id int64) error {
	s.mu.Lock()
	idx := -1
	for i := range s.state.Sessions {
		if s.state.Sessions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %d not found", id))
	}
	if s.state.Sessions[idx].Locked {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("session %d is locked", id))
	}
	s.pushUndoLocked("remove session")
	removed := s.state.Sessions[idx].Clone()
	s.state.Sessions = append(s.state.Sessions[:idx], s.state.Sessions[idx+1:]...)
	s.mu.Unlock()

	s.bus.Publish(events.SessionRemoved, removed)
	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// SetSessionLock toggles the lock flag; locking is always permitted.
func (s *Store) SetSessionLock(id int64, locked bool) error {
	s.mu.Lock()
	sess := s.state.FindSession(id)
	if sess == nil {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %d not found", id))
	}
	s.pushUndoLocked("lock session")
	sess.Locked = locked
	updated := sess.Clone()
	s.mu.Unlock()

	s.bus.Publish(events.SessionUpdated, updated)
	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// FindSessionByID returns a copy of the session, NOT_FOUND is not an
// error here.
func (s *Store) FindSessionByID(id int64) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.state.FindSession(id)
	if sess == nil {
		return models.Session{}, false
	}
	return sess.Clone(), true
}

// Sessions returns copies of sessions matching the filter, ordered by
// id.
func (s *Store) Sessions(filter models.SessionFilter) []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Session
	for i := range s.state.Sessions {
		if filter.Matches(&s.state.Sessions[i]) {
			out = append(out, s.state.Sessions[i].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AppendSessions is the generator's atomic commit: one undo push, ids
// assigned, one event per added session.
func (s *Store) AppendSessions(description string, sessions []models.Session) ([]models.Session, error) {
	for i := range sessions {
		if err := s.validateSession(&sessions[i]); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.pushUndoLocked(description)
	added := make([]models.Session, 0, len(sessions))
	for _, sess := range sessions {
		sess.ID = s.state.NextSessionID
		s.state.NextSessionID++
		if sess.Created.IsZero() {
			sess.Created = s.clock.Now()
		}
		s.state.Sessions = append(s.state.Sessions, sess.Clone())
		added = append(added, sess)
	}
	s.mu.Unlock()

	for _, sess := range added {
		s.bus.Publish(events.SessionAdded, sess)
	}
	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return added, nil
}

// ReplaceSessions is the optimizer's atomic commit: the whole session
// list is swapped under a single undo push. Ids must already exist,
// and every locked session must reappear with its placement, room and
// teacher set intact.
func (s *Store) ReplaceSessions(description string, sessions []models.Session) error {
	s.mu.Lock()
	for i := range sessions {
		if sessions[i].ID <= 0 {
			s.mu.Unlock()
			return appErrors.Clone(appErrors.ErrValidation, "replacement sessions must carry ids")
		}
	}
	for i := range s.state.Sessions {
		current := &s.state.Sessions[i]
		if !current.Locked {
			continue
		}
		replacement := findSessionIn(sessions, current.ID)
		if replacement == nil {
			s.mu.Unlock()
			return appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("locked session %d is missing from the replacement", current.ID))
		}
		if replacement.Day != current.Day || replacement.Slot != current.Slot ||
			replacement.Room != current.Room || !sameTeacherSet(replacement.Teachers, current.Teachers) {
			s.mu.Unlock()
			return appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("session %d is locked", current.ID))
		}
	}
	s.pushUndoLocked(description)
	replaced := make([]models.Session, 0, len(sessions))
	var maxID int64
	for _, sess := range sessions {
		replaced = append(replaced, sess.Clone())
		if sess.ID > maxID {
			maxID = sess.ID
		}
	}
	s.state.Sessions = replaced
	if maxID >= s.state.NextSessionID {
		s.state.NextSessionID = maxID + 1
	}
	s.mu.Unlock()

	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

func findSessionIn(sessions []models.Session, id int64) *models.Session {
	for i := range sessions {
		if sessions[i].ID == id {
			return &sessions[i]
		}
	}
	return nil
}

func sameTeacherSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Snapshot hands out a deep copy of the whole state for working
// copies.
func (s *Store) Snapshot() *models.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// --- Grid & header ---

// Grid returns a copy of the current grid.
func (s *Store) Grid() models.TimeGrid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Grid.Clone()
}

// SetGrid swaps the grid and returns ids of sessions orphaned by the
// change; the caller must migrate them.
func (s *Store) SetGrid(grid models.TimeGrid) ([]int64, error) {
	if err := grid.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grid")
	}
	s.mu.Lock()
	s.pushUndoLocked("replace grid")
	s.state.Grid = grid.Clone()
	orphans := grid.Orphans(s.state.Sessions)
	s.mu.Unlock()

	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return orphans, nil
}

// SetHeader labels the active planning session.
func (s *Store) SetHeader(h models.Header) {
	s.mu.Lock()
	s.state.Header = h
	s.mu.Unlock()
	s.bus.Publish(events.StateChanged, nil)
}

// Header returns the active planning session label.
func (s *Store) Header() models.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Header
}

// --- Undo / redo ---

// Undo restores the last snapshot, moving the current state onto the
// redo stack.
func (s *Store) Undo() error {
	s.mu.Lock()
	restored, ok := s.history.stepBack(s.state, s.clock.Now())
	if !ok {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "nothing to undo")
	}
	s.state = restored
	s.mu.Unlock()

	s.bus.Publish(events.StateUndo, nil)
	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// Redo is symmetric to Undo.
func (s *Store) Redo() error {
	s.mu.Lock()
	restored, ok := s.history.stepForward(s.state, s.clock.Now())
	if !ok {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "nothing to redo")
	}
	s.state = restored
	s.mu.Unlock()

	s.bus.Publish(events.StateRedo, nil)
	s.publishStackChanged()
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// UndoDepth reports the current stack sizes.
func (s *Store) UndoDepth() (undo, redo int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.undoDepth(), s.history.redoDepth()
}

// SetExamRecords stores the exam-planning module's opaque records so
// they ride along with saved sessions. The core never interprets them.
func (s *Store) SetExamRecords(exams, roomConfigs json.RawMessage) {
	s.mu.Lock()
	s.state.Exams = append(json.RawMessage(nil), exams...)
	s.state.ExamRoomConfigs = append(json.RawMessage(nil), roomConfigs...)
	s.mu.Unlock()

	s.bus.Publish(events.ExamUpdated, nil)
	s.bus.Publish(events.StateChanged, nil)
}

// --- Persistence ---

// SaveState writes the named session record plus the global record.
func (s *Store) SaveState(ctx context.Context, name string) error {
	if s.persistence == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "no persistence collaborator configured")
	}
	if strings.TrimSpace(name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "session name is required")
	}

	s.mu.RLock()
	record := models.SessionRecord{
		Sessions:        append([]models.Session(nil), s.state.Sessions...),
		NextSessionID:   s.state.NextSessionID,
		Header:          s.state.Header,
		Grid:            s.state.Grid.Clone(),
		Exams:           s.state.Exams,
		ExamRoomConfigs: s.state.ExamRoomConfigs,
	}
	global := models.GlobalRecord{
		Teachers: s.state.Teachers,
		Subjects: s.state.Subjects,
		Programs: s.state.Programs,
		Rooms:    s.state.Rooms,
		Forfaits: s.state.Forfaits,
		Pools:    s.state.Pools,
	}
	recordBytes, recordErr := json.Marshal(record)
	globalBytes, globalErr := json.Marshal(global)
	s.mu.RUnlock()
	if recordErr != nil {
		return appErrors.Wrap(recordErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode session record")
	}
	if globalErr != nil {
		return appErrors.Wrap(globalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode global record")
	}

	if err := s.persistence.Save(ctx, sessionKeyStem+name, recordBytes); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to save session record")
	}
	if err := s.persistence.Save(ctx, KeyGlobal, globalBytes); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to save global record")
	}
	if err := s.persistence.Save(ctx, KeyLastActive, []byte(name)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to save active session name")
	}

	s.mu.Lock()
	s.activeName = name
	s.mu.Unlock()

	s.logger.Info("state saved", zap.String("session", name))
	s.bus.Publish(events.StateSaved, name)
	return nil
}

// LoadState restores a named session record plus the global record.
// On any failure the pre-call state is kept.
func (s *Store) LoadState(ctx context.Context, name string) error {
	if s.persistence == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "no persistence collaborator configured")
	}
	recordBytes, err := s.persistence.Load(ctx, sessionKeyStem+name)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load session record")
	}
	globalBytes, err := s.persistence.Load(ctx, KeyGlobal)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load global record")
	}

	var record models.SessionRecord
	if err := json.Unmarshal(recordBytes, &record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "malformed session record")
	}
	var global models.GlobalRecord
	if err := json.Unmarshal(globalBytes, &global); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "malformed global record")
	}

	next := models.NewState()
	next.Sessions = record.Sessions
	if record.NextSessionID > 0 {
		next.NextSessionID = record.NextSessionID
	}
	next.Header = record.Header
	if len(record.Grid.Slots) > 0 {
		next.Grid = record.Grid
	}
	next.Exams = record.Exams
	next.ExamRoomConfigs = record.ExamRoomConfigs
	if global.Teachers != nil {
		next.Teachers = global.Teachers
	}
	if global.Subjects != nil {
		next.Subjects = global.Subjects
	}
	if global.Programs != nil {
		next.Programs = global.Programs
	}
	if global.Rooms != nil {
		next.Rooms = global.Rooms
	}
	next.Forfaits = global.Forfaits
	next.Pools = global.Pools

	s.mu.Lock()
	s.state = next.Clone() // own copy, decoupled from decoder buffers
	s.history = newHistory(s.history.depth)
	s.activeName = name
	s.mu.Unlock()

	s.logger.Info("state loaded", zap.String("session", name))
	s.bus.Publish(events.StateChanged, nil)
	return nil
}

// LastActiveName reads the persisted active session name.
func (s *Store) LastActiveName(ctx context.Context) (string, error) {
	if s.persistence == nil {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "no persistence collaborator configured")
	}
	raw, err := s.persistence.Load(ctx, KeyLastActive)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// --- internals ---

// validateSession checks references without holding the write lock.
func (s *Store) validateSession(sess *models.Session) error {
	var fields []string
	if strings.TrimSpace(sess.Subject) == "" {
		fields = append(fields, "subject")
	}
	if sess.Type != models.TypeLecture && sess.Type != models.TypeTutorial && sess.Type != models.TypeLab {
		fields = append(fields, "type")
	}
	if sess.HTP < 0 {
		fields = append(fields, "htp")
	}
	if len(fields) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid session fields: %s", strings.Join(fields, ", ")))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.Grid.HasDay(sess.Day) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("day %s not on grid", sess.Day))
	}
	window, ok := s.state.Grid.Slots[sess.Slot]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %s not on grid", sess.Slot))
	}
	if sess.End == "" {
		sess.End = window.End
	}
	if sess.Room != "" {
		if _, ok := s.state.Rooms[sess.Room]; !ok {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("room %s not found", sess.Room))
		}
	}
	for _, t := range sess.Teachers {
		if _, ok := s.state.Teachers[t]; !ok {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", t))
		}
	}
	return nil
}

// pushUndoLocked snapshots the pre-mutation state; caller holds mu.
func (s *Store) pushUndoLocked(description string) {
	s.history.push(description, s.state.Clone(), s.clock.Now())
}

func (s *Store) publishStackChanged() {
	undo, redo := s.UndoDepth()
	s.bus.Publish(events.UndoStack, map[string]int{"undo": undo, "redo": redo})
}
