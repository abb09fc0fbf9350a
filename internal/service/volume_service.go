package service

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/edtsuite/timetable-core/internal/models"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

// TeacherVolume is a teacher's credited hours for a year.
type TeacherVolume struct {
	Teacher string  `json:"teacher"`
	Autumn  float64 `json:"autumn"`
	Spring  float64 `json:"spring"`
	Annual  float64 `json:"annual"`
}

// SubjectVolume reports declared versus planned hours for a subject.
type SubjectVolume struct {
	Subject    string                     `json:"subject"`
	VHT        float64                    `json:"vht"`
	Expected   int                        `json:"expected"`
	Planned    int                        `json:"planned"`
	Completion float64                    `json:"completion"`
	PerType    map[models.SessionType]int `json:"perType"`
}

// VolumeService aggregates hour credits from placed sessions. A lab
// credits each assigned teacher the full hTP; lectures and tutorials
// split the hTP equally among assigned teachers.
type VolumeService struct {
	logger *zap.Logger
}

// NewVolumeService builds the service.
func NewVolumeService(logger *zap.Logger) *VolumeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolumeService{logger: logger}
}

// SessionCredit is the credit one teacher earns from one session.
func (s *VolumeService) SessionCredit(sess *models.Session, teacher string) float64 {
	if !sess.HasTeacher(teacher) {
		return 0
	}
	if sess.Type == models.TypeLab {
		return sess.HTP
	}
	return sess.HTP / float64(len(sess.Teachers))
}

// TeacherSemesterCredit sums session credits plus forfaits for one
// semester. A session's semester comes from its program, falling back
// to the state header.
func (s *VolumeService) TeacherSemesterCredit(state *models.State, teacher string, semester models.Semester) float64 {
	total := 0.0
	for i := range state.Sessions {
		sess := &state.Sessions[i]
		if sessionSemester(state, sess) != semester {
			continue
		}
		total += s.SessionCredit(sess, teacher)
	}
	for _, f := range state.Forfaits {
		if f.Teacher == teacher && f.Semester == semester {
			total += f.Hours
		}
	}
	return total
}

// TeacherVolume reports both semesters; each forfait is counted once,
// under its own semester.
func (s *VolumeService) TeacherVolume(state *models.State, teacher string) TeacherVolume {
	autumn := s.TeacherSemesterCredit(state, teacher, models.SemesterAutumn)
	spring := s.TeacherSemesterCredit(state, teacher, models.SemesterSpring)
	return TeacherVolume{
		Teacher: teacher,
		Autumn:  autumn,
		Spring:  spring,
		Annual:  autumn + spring,
	}
}

// SubjectVolume reports a subject's declared total hours and its
// planning completion ratio. Expected sessions per type are
// ceil(declaredVolume / hoursPerSession) per group.
func (s *VolumeService) SubjectVolume(state *models.State, name string) (SubjectVolume, error) {
	subj, ok := state.Subjects[name]
	if !ok {
		return SubjectVolume{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s not found", name))
	}

	out := SubjectVolume{
		Subject: name,
		PerType: make(map[models.SessionType]int, len(models.SessionTypes)),
	}
	for _, t := range models.SessionTypes {
		hours := subj.Hours[t]
		if hours <= 0 {
			continue
		}
		sections := subj.SectionsFor(t)
		out.VHT += hours * float64(sections)
		out.Expected += int(math.Ceil(hours/subj.LengthFor(t))) * sections
	}
	for i := range state.Sessions {
		if state.Sessions[i].Subject == name {
			out.Planned++
			out.PerType[state.Sessions[i].Type]++
		}
	}
	if out.Expected > 0 {
		out.Completion = float64(out.Planned) / float64(out.Expected)
	}
	return out, nil
}

func sessionSemester(state *models.State, sess *models.Session) models.Semester {
	if program, ok := state.Programs[sess.Program]; ok && program.Semester != "" {
		return program.Semester
	}
	return state.Header.Semester
}
