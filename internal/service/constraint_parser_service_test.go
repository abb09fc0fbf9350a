package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtsuite/timetable-core/internal/models"
)

func sessionAt(day models.Weekday, slot string, sessionType models.SessionType) *models.Session {
	return &models.Session{
		Subject: "Math101",
		Type:    sessionType,
		Day:     day,
		Slot:    slot,
		HTP:     2,
	}
}

func TestParseUnavailableDay(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)
	grid := models.DefaultGrid()

	c := p.Parse("Dupont", "Pas le vendredi")
	assert.True(t, c.DayUnavailable(models.Friday))
	assert.False(t, c.DayUnavailable(models.Monday))

	assert.Zero(t, p.CompatibilityScore(c, sessionAt(models.Friday, "08:00", models.TypeLecture), grid))
	assert.Greater(t, p.CompatibilityScore(c, sessionAt(models.Monday, "08:00", models.TypeLecture), grid), 0.0)
}

func TestParseOnlyDays(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	c := p.Parse("Dupont", "Uniquement lundi et mardi")
	assert.ElementsMatch(t, []models.Weekday{models.Monday, models.Tuesday}, c.PreferredDays)
	assert.ElementsMatch(t,
		[]models.Weekday{models.Wednesday, models.Thursday, models.Friday, models.Saturday},
		c.UnavailableDays)
}

func TestParseNotAfterHour(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)
	grid := models.DefaultGrid()

	c := p.Parse("Dupont", "pas après 16h")
	assert.Equal(t, "16:00", c.LatestEnd)
	assert.Empty(t, c.EarliestStart, "the negated phrase must not feed the plain apres rule")
	assert.Empty(t, c.UnavailableDays)

	assert.Zero(t, p.CompatibilityScore(c, sessionAt(models.Monday, "16:00", models.TypeLecture), grid), "16:00-18:00 ends past the limit")
	assert.Greater(t, p.CompatibilityScore(c, sessionAt(models.Monday, "14:00", models.TypeLecture), grid), 0.0)
}

func TestParseAfterHour(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)
	grid := models.DefaultGrid()

	c := p.Parse("Dupont", "après 10h uniquement")
	assert.Equal(t, "10:00", c.EarliestStart)
	assert.Zero(t, p.CompatibilityScore(c, sessionAt(models.Monday, "08:00", models.TypeLecture), grid))
}

func TestParseHourRange(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	c := p.Parse("Dupont", "disponible de 8h à 12h")
	assert.Equal(t, "08:00", c.EarliestStart)
	assert.Equal(t, "12:00", c.LatestEnd)
}

func TestParseMaxDailyHours(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	c := p.Parse("Dupont", "maximum 4 heures par jour")
	assert.Equal(t, 4, c.MaxHoursPerDay)

	c = p.Parse("Dupont", "max 6h/day")
	assert.Equal(t, 6, c.MaxHoursPerDay)
}

func TestParseOnlyMorningNoLab(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	c := p.Parse("Dupont", "uniquement le matin, pas de TP")
	assert.Equal(t, models.Preferred, c.TimePreferences[models.Morning])
	assert.Equal(t, models.Avoided, c.TimePreferences[models.Afternoon])
	assert.Equal(t, models.Avoided, c.TimePreferences[models.Evening])
	assert.Equal(t, models.Avoided, c.TypePreferences[models.TypeLab])
	assert.Equal(t, models.Neutral, c.TypePreferences[models.TypeLecture],
		"the negated clause must not bleed into the only clause")
}

func TestParseNegationWinsOverPreference(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	c := p.Parse("Dupont", "uniquement lundi, pas le lundi matin")
	assert.True(t, c.DayUnavailable(models.Monday))
	assert.False(t, c.DayPreferred(models.Monday))
}

func TestParseSentinelRemark(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	for _, raw := range []string{"", "Aucune remarque", "RAS", "none"} {
		c := p.Parse("Dupont", raw)
		assert.Empty(t, c.UnavailableDays, raw)
		assert.Empty(t, c.PreferredDays, raw)
		assert.Empty(t, c.EarliestStart, raw)
		assert.Zero(t, c.MaxHoursPerDay, raw)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)
	raw := "Uniquement lundi et mardi, pas après 16h"

	first := p.Parse("Dupont", raw)
	second := p.Parse("Dupont", raw)
	require.Equal(t, first, second)
}

func TestParseEnglishRemark(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	c := p.Parse("Smith", "not on friday, only morning")
	assert.True(t, c.DayUnavailable(models.Friday))
	assert.Equal(t, models.Preferred, c.TimePreferences[models.Morning])
}

func TestCompatibilityScoreBonusesAndCap(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)
	grid := models.DefaultGrid()

	c := models.NeutralConstraint("manual")
	c.PreferredDays = []models.Weekday{models.Monday}

	assert.Equal(t, 1.0, p.CompatibilityScore(c, sessionAt(models.Monday, "08:00", models.TypeLecture), grid),
		"bonus on a preferred day is capped at 1.0")
	assert.InDelta(t, 0.9, p.CompatibilityScore(c, sessionAt(models.Tuesday, "08:00", models.TypeLecture), grid), 1e-9,
		"non-preferred day is slightly demoted once preferences exist")

	assert.Equal(t, 1.0, p.CompatibilityScore(nil, sessionAt(models.Monday, "08:00", models.TypeLecture), grid),
		"no constraint means fully compatible")
}

func TestValidateSessionReportsViolations(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)
	grid := models.DefaultGrid()

	c := p.Parse("Dupont", "pas le vendredi, avant 16h")
	violations := p.ValidateSession(c, sessionAt(models.Friday, "16:00", models.TypeLecture), grid)
	assert.Len(t, violations, 2)

	assert.Empty(t, p.ValidateSession(c, sessionAt(models.Monday, "08:00", models.TypeLecture), grid))
}

func TestParseWishes(t *testing.T) {
	p := NewConstraintParserService(nil, nil, nil)

	state := models.NewState()
	state.Teachers["Martin"] = &models.Teacher{Name: "Martin", Remark: "Pas le vendredi"}
	state.Teachers["Dupont"] = &models.Teacher{Name: "Dupont"}
	state.Teachers["Bernard"] = &models.Teacher{Name: "Bernard", Remark: "RAS"}

	wishes := p.ParseWishes(state)
	require.Len(t, wishes, 2, "teachers without a remark are skipped")

	assert.Equal(t, "Bernard", wishes[0].Teacher)
	assert.Equal(t, "RAS", wishes[0].Raw)
	assert.False(t, wishes[0].Constraint.DayUnavailable(models.Friday), "sentinel remark parses to neutral")

	assert.Equal(t, "Martin", wishes[1].Teacher)
	assert.True(t, wishes[1].Constraint.DayUnavailable(models.Friday))
}
