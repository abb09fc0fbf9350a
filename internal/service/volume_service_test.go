package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtsuite/timetable-core/internal/models"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

func newVolumeState() *models.State {
	state := models.NewState()
	state.Header = models.Header{Year: "2026-2027", Semester: models.SemesterAutumn}
	state.Programs["INFO1"] = &models.Program{Name: "INFO1", Semester: models.SemesterAutumn}
	state.Programs["INFO2"] = &models.Program{Name: "INFO2", Semester: models.SemesterSpring}
	state.Subjects["Math101"] = &models.Subject{
		Name:          "Math101",
		Program:       "INFO1",
		Hours:         map[models.SessionType]float64{models.TypeLecture: 6, models.TypeTutorial: 2},
		SessionLength: map[models.SessionType]float64{models.TypeLecture: 2, models.TypeTutorial: 1},
		Sections:      map[models.SessionType]int{models.TypeTutorial: 2},
	}
	return state
}

func TestSessionCreditSplitsSharedLectures(t *testing.T) {
	svc := NewVolumeService(nil)

	lecture := &models.Session{
		Type:     models.TypeLecture,
		Teachers: []string{"Dupont", "Martin"},
		HTP:      2,
	}
	assert.Equal(t, 1.0, svc.SessionCredit(lecture, "Dupont"))
	assert.Equal(t, 1.0, svc.SessionCredit(lecture, "Martin"))
	assert.Zero(t, svc.SessionCredit(lecture, "Durand"))
}

func TestSessionCreditLabIsFullPerTeacher(t *testing.T) {
	svc := NewVolumeService(nil)

	lab := &models.Session{
		Type:     models.TypeLab,
		Teachers: []string{"Dupont", "Martin"},
		HTP:      3,
	}
	assert.Equal(t, 3.0, svc.SessionCredit(lab, "Dupont"))
	assert.Equal(t, 3.0, svc.SessionCredit(lab, "Martin"))
}

func TestTeacherVolumeBySemester(t *testing.T) {
	svc := NewVolumeService(nil)
	state := newVolumeState()
	state.Sessions = []models.Session{
		{ID: 1, Subject: "Math101", Type: models.TypeLecture, Program: "INFO1", Day: models.Monday, Slot: "08:00", Teachers: []string{"Dupont"}, HTP: 2},
		{ID: 2, Subject: "Math201", Type: models.TypeLecture, Program: "INFO2", Day: models.Monday, Slot: "10:00", Teachers: []string{"Dupont"}, HTP: 2},
		{ID: 3, Subject: "Math101", Type: models.TypeLab, Program: "INFO1", Day: models.Tuesday, Slot: "08:00", Teachers: []string{"Dupont", "Martin"}, HTP: 3},
	}
	state.Forfaits = []models.Forfait{
		{Teacher: "Dupont", Hours: 10, Semester: models.SemesterAutumn},
		{Teacher: "Dupont", Hours: 5, Semester: models.SemesterSpring},
	}

	v := svc.TeacherVolume(state, "Dupont")
	assert.Equal(t, 15.0, v.Autumn, "2h lecture + 3h lab + 10h forfait")
	assert.Equal(t, 7.0, v.Spring, "2h lecture + 5h forfait")
	assert.Equal(t, 22.0, v.Annual)

	v = svc.TeacherVolume(state, "Martin")
	assert.Equal(t, 3.0, v.Autumn, "co-taught lab credits the full hTP")
	assert.Zero(t, v.Spring)
}

func TestTeacherVolumeFallsBackToHeaderSemester(t *testing.T) {
	svc := NewVolumeService(nil)
	state := newVolumeState()
	state.Sessions = []models.Session{
		{ID: 1, Subject: "Free101", Type: models.TypeLecture, Program: "UNKNOWN", Day: models.Monday, Slot: "08:00", Teachers: []string{"Dupont"}, HTP: 2},
	}

	v := svc.TeacherVolume(state, "Dupont")
	assert.Equal(t, 2.0, v.Autumn, "sessions of unknown programs follow the header semester")
}

func TestSubjectVolumeCompletion(t *testing.T) {
	svc := NewVolumeService(nil)
	state := newVolumeState()

	// CM: 6h in 2h sessions, one group; TD: 2h in 1h sessions, two groups
	v, err := svc.SubjectVolume(state, "Math101")
	require.NoError(t, err)
	assert.Equal(t, 10.0, v.VHT, "6h*1 + 2h*2")
	assert.Equal(t, 7, v.Expected, "3 lectures + 2 tutorials per group")
	assert.Zero(t, v.Planned)
	assert.Zero(t, v.Completion)

	state.Sessions = []models.Session{
		{ID: 1, Subject: "Math101", Type: models.TypeLecture, Day: models.Monday, Slot: "08:00", HTP: 2},
		{ID: 2, Subject: "Math101", Type: models.TypeTutorial, Day: models.Monday, Slot: "10:00", HTP: 1},
	}
	v, err = svc.SubjectVolume(state, "Math101")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Planned)
	assert.Equal(t, 1, v.PerType[models.TypeLecture])
	assert.Equal(t, 1, v.PerType[models.TypeTutorial])
	assert.InDelta(t, 2.0/7.0, v.Completion, 1e-9)
}

func TestSubjectVolumeUnknownSubject(t *testing.T) {
	svc := NewVolumeService(nil)
	state := newVolumeState()

	_, err := svc.SubjectVolume(state, "Ghost999")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
